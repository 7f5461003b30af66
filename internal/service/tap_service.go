package service

import (
	"context"
	"time"

	"nfc-card-ledger/internal/core/domain"
	"nfc-card-ledger/internal/core/ports"
	"nfc-card-ledger/pkg/apperror"

	"github.com/rs/zerolog"
)

// tapService implements ports.TapService: tag-triggered operations pass the
// debouncer before reaching the payment boundary.
type tapService struct {
	payments  ports.PaymentService
	debouncer *Debouncer
	now       func() time.Time
	log       zerolog.Logger
}

// NewTapService creates a new tap service.
func NewTapService(payments ports.PaymentService, debouncer *Debouncer, log zerolog.Logger) ports.TapService {
	return &tapService{
		payments:  payments,
		debouncer: debouncer,
		now:       time.Now,
		log:       log,
	}
}

func (s *tapService) HandleTap(ctx context.Context, req ports.TapRequest) (*ports.TapResult, error) {
	if req.Mode != ports.TapModePay && req.Mode != ports.TapModeTopup {
		return nil, apperror.Validation("mode must be pay or topup")
	}
	if req.Mode == ports.TapModePay && req.ShopID == nil {
		return nil, apperror.Validation("shop_id is required to pay")
	}

	tagID := domain.NormalizeTagID(req.TagID)
	decision := s.debouncer.OnTagEvent(tagID, s.now())
	if decision != Accept {
		s.log.Debug().Str("tag_id", tagID).Stringer("decision", decision).Msg("tag read suppressed")
		return nil, apperror.ErrTapSuppressed(decision.String())
	}
	defer s.debouncer.Done()

	switch req.Mode {
	case ports.TapModeTopup:
		res, err := s.payments.TopUp(ctx, ports.TopUpRequest{TagID: tagID, Amount: req.Amount, ShopID: req.ShopID})
		if err != nil {
			return nil, err
		}
		return &ports.TapResult{TopUp: res}, nil
	default:
		res, err := s.payments.Pay(ctx, ports.PayRequest{TagID: tagID, ShopID: *req.ShopID, Amount: req.Amount})
		if err != nil {
			return nil, err
		}
		return &ports.TapResult{Payment: res}, nil
	}
}

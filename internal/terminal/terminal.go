// Package terminal runs a fixed-function kiosk: every tag presented to the
// attached reader triggers the same pay or top-up operation.
package terminal

import (
	"context"
	"errors"
	"fmt"

	"nfc-card-ledger/internal/adapter/nfc"
	"nfc-card-ledger/internal/core/ports"
	"nfc-card-ledger/pkg/apperror"

	"github.com/rs/zerolog"
)

// EventSource is a startable stream of tag reads, normally *nfc.Reader.
type EventSource interface {
	Start(ctx context.Context) (<-chan nfc.Event, error)
	Stop() error
}

// Action is what the terminal does on each accepted tap.
type Action struct {
	Mode   ports.TapMode
	ShopID *int64
	Amount int64
}

func (a Action) validate() error {
	if a.Amount <= 0 {
		return errors.New("terminal amount must be positive")
	}
	switch a.Mode {
	case ports.TapModePay:
		if a.ShopID == nil {
			return errors.New("terminal in pay mode needs a shop")
		}
	case ports.TapModeTopup:
	default:
		return fmt.Errorf("unknown terminal mode %q", a.Mode)
	}
	return nil
}

// Outcome reports what happened to one tag read.
type Outcome struct {
	TagID  string
	Result *ports.TapResult
	Err    error
}

type Terminal struct {
	source  EventSource
	taps    ports.TapService
	action  Action
	log     zerolog.Logger
	observe func(Outcome)
}

// New binds source to taps. observe, if not nil, is called after every read.
func New(source EventSource, taps ports.TapService, action Action, observe func(Outcome), log zerolog.Logger) (*Terminal, error) {
	if err := action.validate(); err != nil {
		return nil, err
	}
	if observe == nil {
		observe = func(Outcome) {}
	}
	return &Terminal{
		source:  source,
		taps:    taps,
		action:  action,
		log:     log.With().Str("mode", string(action.Mode)).Logger(),
		observe: observe,
	}, nil
}

// Run processes reads until ctx ends or the reader closes. Reads are
// handled one at a time.
func (t *Terminal) Run(ctx context.Context) error {
	events, err := t.source.Start(ctx)
	if err != nil {
		return fmt.Errorf("starting tag reader: %w", err)
	}
	defer func() {
		if err := t.source.Stop(); err != nil {
			t.log.Warn().Err(err).Msg("failed to stop tag reader")
		}
	}()

	t.log.Info().Int64("amount", t.action.Amount).Msg("terminal ready")
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			t.observe(t.handle(ctx, ev))
		}
	}
}

func (t *Terminal) handle(ctx context.Context, ev nfc.Event) Outcome {
	if ev.Err != nil {
		return Outcome{Err: ev.Err}
	}

	res, err := t.taps.HandleTap(ctx, ports.TapRequest{
		TagID:  ev.TagID,
		Mode:   t.action.Mode,
		ShopID: t.action.ShopID,
		Amount: t.action.Amount,
	})
	out := Outcome{TagID: ev.TagID, Result: res, Err: err}

	var appErr *apperror.AppError
	switch {
	case err == nil:
		t.log.Info().Str("tag_id", ev.TagID).Msg("tap processed")
	case errors.As(err, &appErr) && appErr.HTTPStatus < 500:
		t.log.Info().Str("tag_id", ev.TagID).Str("error_code", appErr.Code).Msg("tap rejected")
	default:
		t.log.Error().Err(err).Str("tag_id", ev.TagID).Msg("tap failed")
	}
	return out
}

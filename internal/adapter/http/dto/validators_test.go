package dto

import (
	"math"
	"testing"
	"time"

	"nfc-card-ledger/internal/core/domain"
	"nfc-card-ledger/internal/core/ports"

	"github.com/gin-gonic/gin/binding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafeID_Valid(t *testing.T) {
	cases := []string{
		"ref-001",
		"REF_002",
		"a.b.c",
		"simple123",
	}
	for _, tc := range cases {
		assert.True(t, safeStringRe.MatchString(tc), "expected valid: %s", tc)
	}
}

func TestSafeID_Invalid(t *testing.T) {
	cases := []string{
		"ref 001",
		"ref<001>",
		"ref;DROP",
		"",
		"ref\n001",
	}
	for _, tc := range cases {
		assert.False(t, safeStringRe.MatchString(tc), "expected invalid: %s", tc)
	}
}

func TestBinding_PayRequest(t *testing.T) {
	tests := []struct {
		name  string
		req   PayRequest
		valid bool
	}{
		{"valid", PayRequest{TagID: "NFC001", ShopID: 1, Amount: 120}, true},
		{"lower-case padded tag", PayRequest{TagID: " nfc001 ", ShopID: 1, Amount: 120}, true},
		{"with reference", PayRequest{TagID: "NFC001", ShopID: 1, Amount: 1, ReferenceID: "order-7"}, true},
		{"bad tag characters", PayRequest{TagID: "NFC 001", ShopID: 1, Amount: 1}, false},
		{"missing tag", PayRequest{ShopID: 1, Amount: 1}, false},
		{"zero amount", PayRequest{TagID: "NFC001", ShopID: 1}, false},
		{"negative amount", PayRequest{TagID: "NFC001", ShopID: 1, Amount: -5}, false},
		{"largest amount", PayRequest{TagID: "NFC001", ShopID: 1, Amount: 1_000_000_000_000}, true},
		{"amount over cap", PayRequest{TagID: "NFC001", ShopID: 1, Amount: 1_000_000_000_001}, false},
		{"missing shop", PayRequest{TagID: "NFC001", Amount: 1}, false},
		{"unsafe reference", PayRequest{TagID: "NFC001", ShopID: 1, Amount: 1, ReferenceID: "a b"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := binding.Validator.ValidateStruct(&tt.req)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestBinding_AmountCaps(t *testing.T) {
	assert.Error(t, binding.Validator.ValidateStruct(&TopUpRequest{TagID: "NFC001", Amount: math.MaxInt64}))
	assert.NoError(t, binding.Validator.ValidateStruct(&TopUpRequest{TagID: "NFC001", Amount: 1_000_000_000_000}))
	assert.Error(t, binding.Validator.ValidateStruct(&TapRequest{TagID: "NFC001", Mode: "topup", Amount: math.MaxInt64}))
	assert.Error(t, binding.Validator.ValidateStruct(&RegisterCardRequest{TagID: "NFC001", OpeningBalance: math.MaxInt64}))
	assert.NoError(t, binding.Validator.ValidateStruct(&RegisterCardRequest{TagID: "NFC001"}))
}

func TestBinding_TapRequestMode(t *testing.T) {
	ok := TapRequest{TagID: "NFC001", Mode: "topup", Amount: 10}
	assert.NoError(t, binding.Validator.ValidateStruct(&ok))

	bad := TapRequest{TagID: "NFC001", Mode: "refund", Amount: 10}
	assert.Error(t, binding.Validator.ValidateStruct(&bad))
}

func TestBinding_SetCardStatusRequiresActive(t *testing.T) {
	assert.Error(t, binding.Validator.ValidateStruct(&SetCardStatusRequest{}))

	off := false
	assert.NoError(t, binding.Validator.ValidateStruct(&SetCardStatusRequest{Active: &off}))
}

func TestPresenter_Payment(t *testing.T) {
	used := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	shopID := int64(1)
	p := Presenter{Exponent: 2}

	resp := p.Payment(&ports.PaymentResult{
		Card: &domain.Card{ID: 1, TagID: "NFC001", Balance: 380, Active: true, LastUsedAt: &used, CreatedAt: used},
		Transaction: &domain.Transaction{
			ID: 9, CardID: 1, ShopID: &shopID, Kind: domain.TransactionKindPurchase,
			Amount: 120, PreviousBalance: 500, NewBalance: 380,
			Status: domain.TransactionStatusCompleted, CreatedAt: used,
		},
		RemainingBalance: 380,
	})

	assert.Equal(t, "3.80", resp.RemainingBalanceDisplay)
	assert.Equal(t, "3.80", resp.Card.BalanceDisplay)
	assert.Equal(t, "1.20", resp.Transaction.AmountDisplay)
	assert.Equal(t, "purchase", resp.Transaction.Kind)
	require.NotNil(t, resp.Card.LastUsedAt)
	assert.Equal(t, "2026-03-01T09:30:00Z", *resp.Card.LastUsedAt)
}

func TestPresenter_TransactionListPages(t *testing.T) {
	p := Presenter{}
	resp := p.TransactionList([]domain.Transaction{{ID: 1, Amount: 5}}, 41, 1, 20)

	assert.Equal(t, 3, resp.TotalPages)
	assert.Equal(t, "5", resp.Items[0].AmountDisplay)

	empty := p.TransactionList(nil, 0, 1, 20)
	assert.NotNil(t, empty.Items)
	assert.Zero(t, empty.TotalPages)
}

// Package memory is the in-process fallback store. It keeps the same
// invariants as the PostgreSQL store for the lifetime of the process and is
// not persisted.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"nfc-card-ledger/internal/core/domain"
	"nfc-card-ledger/internal/core/ports"
)

// Store implements ports.Store with maps guarded by a single RWMutex, so every
// call is atomic with respect to every other call.
type Store struct {
	mu         sync.RWMutex
	cards      map[int64]*domain.Card
	tagIndex   map[string]int64
	txs        []domain.Transaction
	shops      map[int64]*domain.Shop
	nextCardID int64
	nextTxID   int64
	now        func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithDemoData seeds the fixed demo cards and shops.
func WithDemoData() Option {
	return func(s *Store) {
		for _, c := range DemoCards {
			s.insertCard(&domain.Card{TagID: c.TagID, Balance: c.Balance, Active: true, CreatedAt: s.now()})
		}
		for _, shop := range DemoShops {
			shop := shop
			s.shops[shop.ID] = &shop
		}
	}
}

// WithClock overrides the clock used for CreatedAt on seeded cards.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// DemoCards are the seeded tags and their opening balances.
var DemoCards = []struct {
	TagID   string
	Balance int64
}{
	{"NFC001", 500},
	{"NFC002", 250},
	{"NFC003", 1000},
	{"NFC004", 0},
}

// DemoShops are the seeded shops.
var DemoShops = []domain.Shop{
	{ID: 1, Name: "Cafeteria", Status: domain.ShopStatusActive},
	{ID: 2, Name: "Bookshop", Status: domain.ShopStatusActive},
	{ID: 3, Name: "Night Kiosk", Status: domain.ShopStatusInactive},
}

// New creates an empty store. Options are applied in order, so WithClock must
// precede WithDemoData to affect seeded timestamps.
func New(opts ...Option) *Store {
	s := &Store{
		cards:    make(map[int64]*domain.Card),
		tagIndex: make(map[string]int64),
		shops:    make(map[int64]*domain.Shop),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Cards() ports.CardRepository               { return cardRepo{s} }
func (s *Store) Transactions() ports.TransactionRepository { return txRepo{s} }
func (s *Store) Shops() ports.ShopRepository               { return shopRepo{s} }

// ApplyTransaction updates the card and appends t under one write lock.
func (s *Store) ApplyTransaction(ctx context.Context, t *domain.Transaction) error {
	if t.NewBalance < 0 {
		return ports.ErrConflict
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cards[t.CardID]
	if !ok {
		return ports.ErrNotFound
	}
	if c.Balance != t.PreviousBalance {
		return ports.ErrConflict
	}
	c.Balance = t.NewBalance
	at := t.CreatedAt
	c.LastUsedAt = &at

	s.nextTxID++
	t.ID = s.nextTxID
	s.txs = append(s.txs, *t)
	return nil
}

// PutShop inserts or replaces a shop. Shops are owned by the catalog
// subsystem; this exists for seeding.
func (s *Store) PutShop(shop domain.Shop) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shops[shop.ID] = &shop
}

// insertCard must be called with mu held (or before the store is shared).
func (s *Store) insertCard(c *domain.Card) {
	s.nextCardID++
	c.ID = s.nextCardID
	cp := *c
	s.cards[c.ID] = &cp
	s.tagIndex[c.TagID] = c.ID
}

func copyCard(c *domain.Card) *domain.Card {
	cp := *c
	if c.LastUsedAt != nil {
		t := *c.LastUsedAt
		cp.LastUsedAt = &t
	}
	return &cp
}

// --- Cards ---

type cardRepo struct{ s *Store }

func (r cardRepo) Create(ctx context.Context, c *domain.Card) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.tagIndex[c.TagID]; exists {
		return ports.ErrDuplicate
	}
	r.s.insertCard(c)
	return nil
}

func (r cardRepo) GetByID(ctx context.Context, id int64) (*domain.Card, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.cards[id]
	if !ok {
		return nil, nil
	}
	return copyCard(c), nil
}

func (r cardRepo) GetByTagID(ctx context.Context, tagID string) (*domain.Card, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	id, ok := r.s.tagIndex[tagID]
	if !ok {
		return nil, nil
	}
	return copyCard(r.s.cards[id]), nil
}

func (r cardRepo) SetActive(ctx context.Context, id int64, active bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.cards[id]
	if !ok {
		return ports.ErrNotFound
	}
	c.Active = active
	return nil
}

// --- Transactions ---

type txRepo struct{ s *Store }

func (r txRepo) GetByID(ctx context.Context, id int64) (*domain.Transaction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for i := range r.s.txs {
		if r.s.txs[i].ID == id {
			t := r.s.txs[i]
			return &t, nil
		}
	}
	return nil, nil
}

func (r txRepo) List(ctx context.Context, params ports.TransactionListParams) ([]domain.Transaction, int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var result []domain.Transaction
	for _, t := range r.s.txs {
		if params.CardID != nil && t.CardID != *params.CardID {
			continue
		}
		if params.ShopID != nil && (t.ShopID == nil || *t.ShopID != *params.ShopID) {
			continue
		}
		if params.Kind != nil && t.Kind != *params.Kind {
			continue
		}
		if params.From != nil && t.CreatedAt.Before(*params.From) {
			continue
		}
		if params.To != nil && t.CreatedAt.After(*params.To) {
			continue
		}
		result = append(result, t)
	}
	total := int64(len(result))

	if params.PageSize <= 0 {
		return result, total, nil
	}
	page := params.Page
	if page < 1 {
		page = 1
	}
	start := (page - 1) * params.PageSize
	if start >= len(result) {
		return []domain.Transaction{}, total, nil
	}
	end := start + params.PageSize
	if end > len(result) {
		end = len(result)
	}
	return result[start:end], total, nil
}

func (r txRepo) GetStats(ctx context.Context, params ports.StatsParams) (*ports.TransactionStats, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	stats := &ports.TransactionStats{}
	for _, t := range r.s.txs {
		if params.ShopID != nil && (t.ShopID == nil || *t.ShopID != *params.ShopID) {
			continue
		}
		if params.CardID != nil && t.CardID != *params.CardID {
			continue
		}
		if params.Since != nil && t.CreatedAt.Before(*params.Since) {
			continue
		}
		if t.Status != domain.TransactionStatusCompleted {
			continue
		}
		switch t.Kind {
		case domain.TransactionKindPurchase:
			stats.Purchases++
			stats.PurchaseTotal += t.Amount
		case domain.TransactionKindTopup:
			stats.Topups++
			stats.TopupTotal += t.Amount
		}
	}
	return stats, nil
}

// --- Shops ---

type shopRepo struct{ s *Store }

func (r shopRepo) GetByID(ctx context.Context, id int64) (*domain.Shop, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	shop, ok := r.s.shops[id]
	if !ok {
		return nil, nil
	}
	cp := *shop
	return &cp, nil
}

func (r shopRepo) List(ctx context.Context) ([]domain.Shop, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	shops := make([]domain.Shop, 0, len(r.s.shops))
	for _, shop := range r.s.shops {
		shops = append(shops, *shop)
	}
	sort.Slice(shops, func(i, j int) bool { return shops[i].ID < shops[j].ID })
	return shops, nil
}

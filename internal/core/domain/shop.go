package domain

// ShopStatus represents whether a shop accepts payments.
type ShopStatus string

const (
	ShopStatusActive   ShopStatus = "active"
	ShopStatusInactive ShopStatus = "inactive"
)

// Shop is owned by the catalog subsystem; the ledger only reads it.
type Shop struct {
	ID     int64      `json:"id"`
	Name   string     `json:"name"`
	Status ShopStatus `json:"status"`
}

// IsActive returns true if the shop accepts payments.
func (s *Shop) IsActive() bool {
	return s.Status == ShopStatusActive
}

package domain

import (
	"math"
	"regexp"
	"strings"
	"time"
)

// Card is a stored-value card identified externally by its NFC tag.
// Balance is held in the smallest currency unit and is never negative.
type Card struct {
	ID         int64      `json:"id"`
	TagID      string     `json:"tag_id"`
	Balance    int64      `json:"balance"`
	Active     bool       `json:"active"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// CanCover reports whether the card balance covers amount.
func (c *Card) CanCover(amount int64) bool {
	return amount <= c.Balance
}

// CanAccept reports whether amount can be added without overflowing the
// balance.
func (c *Card) CanAccept(amount int64) bool {
	return amount <= math.MaxInt64-c.Balance
}

// MaxTagIDLength bounds tag identifiers; real UIDs are at most 10 bytes hex-encoded.
const MaxTagIDLength = 64

var tagIDRe = regexp.MustCompile(`^[A-Z0-9:_\-]+$`)

// NormalizeTagID trims and upper-cases a tag identifier as read from a scanner
// or typed by an operator.
func NormalizeTagID(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// ValidTagID reports whether a normalized tag identifier is well formed.
func ValidTagID(tagID string) bool {
	return len(tagID) > 0 && len(tagID) <= MaxTagIDLength && tagIDRe.MatchString(tagID)
}

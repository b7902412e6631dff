package models

import (
	"slices"
	"time"
)

// User is an end user of a project, identified per chat channel.
type User struct {
	ID         string         `json:"id"`
	ProjectID  string         `json:"project_id"`
	ChannelID  string         `json:"channel_id"`
	Username   string         `json:"username,omitempty"`
	FirstName  string         `json:"first_name,omitempty"`
	LastName   string         `json:"last_name,omitempty"`
	Phone      string         `json:"phone,omitempty"`
	ReferrerID string         `json:"referrer_id,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// BonusTransaction is one entry of the bonus ledger. Grants are positive,
// spends negative.
type BonusTransaction struct {
	ID             string     `json:"id"`
	ProjectID      string     `json:"project_id"`
	UserID         string     `json:"user_id"`
	Amount         int64      `json:"amount"`
	Reason         string     `json:"reason"`
	IdempotencyKey string     `json:"idempotency_key,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Active reports whether the transaction still counts at the given instant.
func (b *BonusTransaction) Active(now time.Time) bool {
	return b.ExpiresAt == nil || b.ExpiresAt.After(now)
}

// grant is a positive ledger entry and what is left of it after spends.
type grant struct {
	tx        *BonusTransaction
	remaining int64
}

// allocate replays the ledger in creation order. Each spend is drawn from
// the grants active when it was made, soonest expiry first, grants without
// expiry last.
func allocate(txs []*BonusTransaction) []*grant {
	ordered := slices.Clone(txs)
	slices.SortStableFunc(ordered, func(a, b *BonusTransaction) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	var grants []*grant

	for _, tx := range ordered {
		if tx.Amount > 0 {
			grants = append(grants, &grant{tx: tx, remaining: tx.Amount})

			continue
		}

		open := make([]*grant, 0, len(grants))

		for _, g := range grants {
			if g.remaining > 0 && g.tx.Active(tx.CreatedAt) {
				open = append(open, g)
			}
		}

		slices.SortStableFunc(open, func(a, b *grant) int {
			return compareExpiry(a.tx.ExpiresAt, b.tx.ExpiresAt)
		})

		debt := -tx.Amount

		for _, g := range open {
			if debt == 0 {
				break
			}

			take := min(g.remaining, debt)
			g.remaining -= take
			debt -= take
		}
	}

	return grants
}

func compareExpiry(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	default:
		return a.Compare(*b)
	}
}

// Balance is what is left of the grants still active at now.
func Balance(txs []*BonusTransaction, now time.Time) int64 {
	var total int64

	for _, g := range allocate(txs) {
		if g.tx.Active(now) {
			total += g.remaining
		}
	}

	return total
}

// ExpiringWithin sums the unspent part of active grants that expire before
// now+window.
func ExpiringWithin(txs []*BonusTransaction, now time.Time, window time.Duration) int64 {
	var total int64

	limit := now.Add(window)

	for _, g := range allocate(txs) {
		if g.tx.ExpiresAt != nil && g.tx.Active(now) && !g.tx.ExpiresAt.After(limit) {
			total += g.remaining
		}
	}

	return total
}

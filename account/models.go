// Package account defines the derived credit balance rows.
//
// Accounts are a projection of the transaction log, never a source of
// truth: replaying the log from the beginning must reproduce them
// exactly. Rows are created lazily on first touch, never deleted,
// only ever zeroed.
package account

import (
	"github.com/xraph/creditledger/types"
)

// Key identifies one balance bucket.
type Key struct {
	OwnerID string           `json:"owner_id"`
	Kind    types.CreditKind `json:"kind"`
}

// Account is one derived balance row. Balance never goes negative;
// the validator rejects any transaction that would overdraw it.
type Account struct {
	types.Entity
	OwnerID string           `json:"owner_id"`
	Kind    types.CreditKind `json:"kind"`
	Balance int64            `json:"balance"`

	// LastSeq is the sequence of the last transaction folded into
	// Balance, used by consistency audits to pin the comparison point.
	LastSeq uint64 `json:"last_seq"`
}

// Key returns the account's identity.
func (a *Account) Key() Key {
	return Key{OwnerID: a.OwnerID, Kind: a.Kind}
}

// Clone returns a copy so stores never hand out live pointers.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	clone := *a
	return &clone
}

// BalanceSummary is the per-owner dashboard view across both kinds.
type BalanceSummary struct {
	OwnerID string `json:"owner_id"`
	Compute int64  `json:"compute"`
	Storage int64  `json:"storage"`
}

// Total returns the combined credit count across kinds. Display only;
// compute and storage credits are never interchangeable.
func (s BalanceSummary) Total() int64 {
	return s.Compute + s.Storage
}

package transaction

import (
	"sort"
	"strings"
	"time"

	"github.com/xraph/creditledger/types"
)

// Filter narrows a transaction history query. Zero-valued fields are
// ignored. All set fields must match (AND semantics).
type Filter struct {
	OwnerID    string
	CreditKind types.CreditKind
	Kind       Kind
	Status     Status

	// TextSearch matches case-insensitively against the usage agent
	// ID, the operation label, and transfer endpoint agent IDs.
	// Purchases carry none of these fields and never match a
	// non-empty search.
	TextSearch string

	// Start and End bound the transaction Timestamp. Start is
	// inclusive, End exclusive.
	Start time.Time
	End   time.Time

	Limit  int
	Offset int
}

// Matches reports whether tx satisfies every set field of the filter.
// Pagination fields are ignored here; stores apply them after sorting.
func (f Filter) Matches(tx *Transaction) bool {
	if f.OwnerID != "" && tx.OwnerID != f.OwnerID {
		return false
	}
	if f.CreditKind != "" && tx.CreditKind != f.CreditKind {
		return false
	}
	if f.Kind != "" && tx.Kind != f.Kind {
		return false
	}
	if f.Status != "" && tx.Status != f.Status {
		return false
	}
	if !f.Start.IsZero() && tx.Timestamp.Before(f.Start) {
		return false
	}
	if !f.End.IsZero() && !tx.Timestamp.Before(f.End) {
		return false
	}
	if f.TextSearch != "" && !matchesText(tx, f.TextSearch) {
		return false
	}
	return true
}

// matchesText checks the searchable fields of each variant. A field
// the variant does not carry is a non-match for that field only.
func matchesText(tx *Transaction, query string) bool {
	q := strings.ToLower(query)

	contains := func(s string) bool {
		return s != "" && strings.Contains(strings.ToLower(s), q)
	}

	switch tx.Kind {
	case KindUsage:
		if tx.Usage == nil {
			return false
		}
		return contains(tx.Usage.AgentID.String()) || contains(tx.Usage.OperationLabel)
	case KindTransfer:
		if tx.Transfer == nil {
			return false
		}
		return contains(tx.Transfer.FromAgentID.String()) || contains(tx.Transfer.ToAgentID.String())
	default:
		return false
	}
}

// SortNewestFirst orders transactions for history views: newest
// timestamp first, ties broken by descending sequence so equal-time
// entries still appear in reverse admission order.
func SortNewestFirst(txs []*Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		if !txs[i].Timestamp.Equal(txs[j].Timestamp) {
			return txs[i].Timestamp.After(txs[j].Timestamp)
		}
		return txs[i].Seq > txs[j].Seq
	})
}

// Paginate applies Offset and Limit to an already-sorted slice.
func (f Filter) Paginate(txs []*Transaction) []*Transaction {
	if f.Offset > 0 {
		if f.Offset >= len(txs) {
			return nil
		}
		txs = txs[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(txs) {
		txs = txs[:f.Limit]
	}
	return txs
}

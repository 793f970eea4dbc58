package transaction

import (
	"testing"
	"time"

	"github.com/xraph/creditledger/id"
	"github.com/xraph/creditledger/types"
)

var (
	testAgentA = id.MustParse("agt_01h455vb4pex5vsknk084sn02q")
	testAgentB = id.MustParse("agt_01h455vb4pex5vsknk084sn02r")
)

func usageTx(owner string, kind types.CreditKind, agentID id.AgentID, label string, ts time.Time) *Transaction {
	return &Transaction{
		Kind:       KindUsage,
		CreditKind: kind,
		OwnerID:    owner,
		Amount:     -1,
		Timestamp:  ts,
		Status:     StatusCompleted,
		Usage:      &UsageDetails{AgentID: agentID, OperationLabel: label},
	}
}

func TestFilterMatches(t *testing.T) {
	ts := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	tx := usageTx("owner_1", types.CreditCompute, testAgentA, "inference", ts)

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"Empty", Filter{}, true},
		{"OwnerMatch", Filter{OwnerID: "owner_1"}, true},
		{"OwnerMismatch", Filter{OwnerID: "owner_2"}, false},
		{"KindMatch", Filter{Kind: KindUsage}, true},
		{"KindMismatch", Filter{Kind: KindPurchase}, false},
		{"CreditKindMatch", Filter{CreditKind: types.CreditCompute}, true},
		{"CreditKindMismatch", Filter{CreditKind: types.CreditStorage}, false},
		{"StatusMatch", Filter{Status: StatusCompleted}, true},
		{"StatusMismatch", Filter{Status: StatusPending}, false},
		{"StartInclusive", Filter{Start: ts}, true},
		{"StartAfter", Filter{Start: ts.Add(time.Second)}, false},
		{"EndExclusive", Filter{End: ts}, false},
		{"EndAfter", Filter{End: ts.Add(time.Second)}, true},
		{"Window", Filter{Start: ts.Add(-time.Hour), End: ts.Add(time.Hour)}, true},
		{"Combined", Filter{OwnerID: "owner_1", Kind: KindUsage, TextSearch: "infer"}, true},
		{"CombinedOneMiss", Filter{OwnerID: "owner_1", Kind: KindPurchase, TextSearch: "infer"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(tx); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilterTextSearch(t *testing.T) {
	ts := time.Now()
	usage := usageTx("owner_1", types.CreditCompute, testAgentA, "Dataset-Upload", ts)
	transfer := &Transaction{
		Kind:      KindTransfer,
		OwnerID:   "owner_1",
		Amount:    10,
		Timestamp: ts,
		Status:    StatusCompleted,
		Transfer:  &TransferDetails{FromAgentID: testAgentA, ToAgentID: testAgentB},
	}
	purchase := &Transaction{
		Kind:      KindPurchase,
		OwnerID:   "owner_1",
		Amount:    100,
		Timestamp: ts,
		Status:    StatusCompleted,
		Purchase:  &PurchaseDetails{Cost: types.A0GI(1), ExternalTxHash: "0xabc"},
	}

	tests := []struct {
		name  string
		tx    *Transaction
		query string
		want  bool
	}{
		{"LabelCaseInsensitive", usage, "dataset-upload", true},
		{"LabelSubstring", usage, "UPLOAD", true},
		{"LabelMiss", usage, "inference", false},
		{"UsageAgentID", usage, testAgentA.String(), true},
		{"TransferFromEndpoint", transfer, testAgentA.String(), true},
		{"TransferToEndpoint", transfer, testAgentB.String(), true},
		{"TransferMiss", transfer, "inference", false},
		{"PurchaseNeverMatches", purchase, "0xabc", false},
		{"PurchaseNeverMatchesOwner", purchase, "owner_1", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := Filter{TextSearch: tt.query}
			if got := f.Matches(tt.tx); got != tt.want {
				t.Errorf("Matches(%q) = %v, want %v", tt.query, got, tt.want)
			}
		})
	}
}

func TestSortNewestFirst(t *testing.T) {
	t0 := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	txs := []*Transaction{
		{Seq: 1, Timestamp: t0},
		{Seq: 3, Timestamp: t0.Add(time.Minute)},
		// Equal timestamps: higher seq wins.
		{Seq: 4, Timestamp: t0.Add(time.Minute)},
		{Seq: 2, Timestamp: t0.Add(2 * time.Minute)},
	}

	SortNewestFirst(txs)

	wantSeqs := []uint64{2, 4, 3, 1}
	for i, want := range wantSeqs {
		if txs[i].Seq != want {
			t.Errorf("txs[%d].Seq = %d, want %d", i, txs[i].Seq, want)
		}
	}
}

func TestFilterPaginate(t *testing.T) {
	txs := []*Transaction{{Seq: 5}, {Seq: 4}, {Seq: 3}, {Seq: 2}, {Seq: 1}}

	tests := []struct {
		name     string
		filter   Filter
		wantSeqs []uint64
	}{
		{"NoPagination", Filter{}, []uint64{5, 4, 3, 2, 1}},
		{"LimitOnly", Filter{Limit: 2}, []uint64{5, 4}},
		{"OffsetOnly", Filter{Offset: 3}, []uint64{2, 1}},
		{"LimitAndOffset", Filter{Limit: 2, Offset: 1}, []uint64{4, 3}},
		{"OffsetPastEnd", Filter{Offset: 10}, nil},
		{"LimitPastEnd", Filter{Limit: 10}, []uint64{5, 4, 3, 2, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.filter.Paginate(txs)
			if len(got) != len(tt.wantSeqs) {
				t.Fatalf("len = %d, want %d", len(got), len(tt.wantSeqs))
			}
			for i, want := range tt.wantSeqs {
				if got[i].Seq != want {
					t.Errorf("got[%d].Seq = %d, want %d", i, got[i].Seq, want)
				}
			}
		})
	}
}

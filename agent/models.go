// Package agent defines the registry binding minted AI agents to their
// owners. The ledger needs the binding to validate transfer endpoints
// and to label usage for analytics; minting itself happens upstream.
package agent

import (
	"github.com/xraph/creditledger/id"
	"github.com/xraph/creditledger/types"
)

// Agent is one registered AI agent NFT.
type Agent struct {
	types.Entity
	ID      id.AgentID `json:"id"`
	OwnerID string     `json:"owner_id"`
	Name    string     `json:"name"`

	// TokenID is the on-chain NFT token reference from minting.
	TokenID string `json:"token_id,omitempty"`
}

// Clone returns a copy so stores never hand out live pointers.
func (a *Agent) Clone() *Agent {
	if a == nil {
		return nil
	}
	clone := *a
	return &clone
}

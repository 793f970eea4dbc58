package creditledger

import "github.com/xraph/creditledger/types"

// Re-export common types for convenience so users don't have to import types package.

// Coin is re-exported from types package.
type Coin = types.Coin

// CreditKind is re-exported from types package.
type CreditKind = types.CreditKind

// Entity is re-exported from types package.
type Entity = types.Entity

// Credit kind constants re-exported from types package.
const (
	CreditCompute = types.CreditCompute
	CreditStorage = types.CreditStorage
)

// Re-export Coin constructors
var (
	A0GI     = types.A0GI
	ETH      = types.ETH
	USDC     = types.USDC
	ZeroCoin = types.ZeroCoin
	SumCoins = types.SumCoins
)

// Re-export Entity constructor
var NewEntity = types.NewEntity

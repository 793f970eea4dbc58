// Package types provides common types used across the credit ledger.
package types

import "fmt"

// CreditKind identifies an independent credit balance bucket.
// Compute and storage credits never mix: every transaction, account
// row, and balance check is scoped to exactly one kind.
type CreditKind string

const (
	// CreditCompute denominates credits spent on inference and training.
	CreditCompute CreditKind = "compute"
	// CreditStorage denominates credits spent on model and dataset storage.
	CreditStorage CreditKind = "storage"
)

// Kinds returns all valid credit kinds.
func Kinds() []CreditKind {
	return []CreditKind{CreditCompute, CreditStorage}
}

// Valid reports whether k is a known credit kind.
func (k CreditKind) Valid() bool {
	return k == CreditCompute || k == CreditStorage
}

// String implements fmt.Stringer.
func (k CreditKind) String() string { return string(k) }

// ParseCreditKind converts a string into a CreditKind.
func ParseCreditKind(s string) (CreditKind, error) {
	k := CreditKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("types: unknown credit kind %q", s)
	}
	return k, nil
}

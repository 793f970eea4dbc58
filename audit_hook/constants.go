package audithook

// Action constants for audit events.
const (
	// Transaction actions
	ActionTransactionAdmitted  = "transaction.admitted"
	ActionTransactionCompleted = "transaction.completed"
	ActionTransactionFailed    = "transaction.failed"

	// Purchase actions
	ActionPurchaseConfirmed = "purchase.confirmed"

	// Balance actions
	ActionBalanceChanged      = "balance.changed"
	ActionInsufficientBalance = "balance.insufficient"

	// Agent actions
	ActionAgentRegistered = "agent.registered"

	// Audit actions
	ActionProjectionDrift = "projection.drift"
)

// Resource constants for audit events.
const (
	ResourceTransaction = "transaction"
	ResourcePurchase    = "purchase"
	ResourceBalance     = "balance"
	ResourceAgent       = "agent"
	ResourceProjection  = "projection"
)

// Category constants for audit events.
const (
	CategoryCredit  = "credit"
	CategoryPayment = "payment"
	CategoryAccess  = "access"
	CategoryAudit   = "audit"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)

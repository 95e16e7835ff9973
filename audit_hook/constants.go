package audithook

// Action constants for audit events.
const (
	// Client actions
	ActionClientCreated = "client.created"
	ActionClientUpdated = "client.updated"

	// Loan actions
	ActionLoanDisbursed     = "loan.disbursed"
	ActionLoanReconstructed = "loan.reconstructed"
	ActionLoanTermsUpdated  = "loan.terms_updated"

	// Payment actions
	ActionPaymentRecorded = "payment.recorded"
	ActionPaymentEdited   = "payment.edited"
	ActionPaymentDeleted  = "payment.deleted"

	// Status actions
	ActionStatusChanged = "status.changed"

	// Credential actions
	ActionPinRejected = "pin.rejected"
)

// Resource constants for audit events.
const (
	ResourceClient       = "client"
	ResourceDisbursement = "disbursement"
	ResourcePayment      = "payment"
	ResourceCredential   = "credential"
)

// Category constants for audit events.
const (
	CategoryClient  = "client"
	CategoryLending = "lending"
	CategoryPayment = "payment"
	CategoryAccess  = "access"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

var allActions = []string{
	ActionClientCreated,
	ActionClientUpdated,
	ActionLoanDisbursed,
	ActionLoanReconstructed,
	ActionLoanTermsUpdated,
	ActionPaymentRecorded,
	ActionPaymentEdited,
	ActionPaymentDeleted,
	ActionStatusChanged,
	ActionPinRejected,
}

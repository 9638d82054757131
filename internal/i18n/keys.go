// internal/i18n/keys.go
package i18n

// Translation keys constants
const (
	// Common
	KeySuccess = "success"
	KeyError   = "error"

	// Authentication
	KeyAuthRequired           = "auth.required"
	KeyAuthInvalidToken       = "auth.invalid_token"
	KeyAuthTokenExpired       = "auth.token_expired"
	KeyAuthInvalidCredentials = "auth.invalid_credentials"
	KeyAuthLoginSuccess       = "auth.login_success"
	KeyCapabilityMissing      = "auth.capability_missing"

	// Grants
	KeyGrantCreated         = "grant.created"
	KeyGrantCompleted       = "grant.completed"
	KeyGrantRevenueShared   = "grant.revenue_shared"
	KeyGrantMaturityChecked = "grant.maturity_checked"

	// Loans
	KeyLoanCreated    = "loan.created"
	KeyLoanDisbursed  = "loan.disbursed"
	KeyLoanRepaid     = "loan.repaid"
	KeyLoanDefaulted  = "loan.defaulted"
	KeyLoanLiquidated = "loan.liquidated"

	// Schedules
	KeyScheduleCreated    = "schedule.created"
	KeyEvidenceSubmitted  = "milestone.evidence_submitted"
	KeyMilestoneCompleted = "milestone.completed"
	KeyMilestoneRejected  = "milestone.rejected"

	// Proofs
	KeyProofSubmitted      = "proof.submitted"
	KeyProofVerified       = "proof.verified"
	KeyCircuitRegistered   = "circuit.registered"
	KeyCircuitDeactivated  = "circuit.deactivated"
	KeyCircuitReactivated  = "circuit.reactivated"
	KeyExpiryWindowUpdated = "proof.expiry_updated"

	// Pricing
	KeyPricingUpdated = "pricing.updated"

	// Admin
	KeyAdminComponentPaused   = "admin.component_paused"
	KeyAdminComponentUnpaused = "admin.component_unpaused"
	KeyAdminOperatorCreated   = "admin.operator_created"
	KeyAdminBatchRegistered   = "admin.batch_registered"

	// Validation
	KeyValidationRequired = "validation.required"
	KeyValidationInvalid  = "validation.invalid"

	// File Upload
	KeyFileUploadSuccess = "file.upload_success"
	KeyFileUploadFailed  = "file.upload_failed"

	// Errors by code; the code is appended to this prefix.
	KeyErrorPrefix   = "error."
	KeyInternalError = "error.internal"
	KeyUnavailable   = "error.unavailable"
)

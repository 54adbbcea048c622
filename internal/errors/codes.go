package errors

// Error codes returned in ErrorResponse.Error.
// Clients map these codes to their own messages.

const (
	// ==================== Auth (AUTH_) ====================
	AuthUnauthorized       = "AUTH_UNAUTHORIZED"
	AuthInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	AuthTokenExpired       = "AUTH_TOKEN_EXPIRED"
	AuthTokenInvalid       = "AUTH_TOKEN_INVALID"
	AuthTokenRevoked       = "AUTH_TOKEN_REVOKED"
	AuthSessionRequired    = "AUTH_SESSION_REQUIRED"

	// ==================== Authorization (AUTHZ_) ====================
	AuthzForbidden    = "AUTHZ_FORBIDDEN"
	AuthzRoleNotFound = "AUTHZ_ROLE_NOT_FOUND"
	AuthzWrongMember  = "AUTHZ_WRONG_MEMBER"

	// ==================== Validation (VALIDATION_) ====================
	ValidationInvalidInput = "VALIDATION_INVALID_INPUT"
	ValidationInvalidID    = "VALIDATION_INVALID_ID"
	ValidationInvalidRange = "VALIDATION_INVALID_RANGE"
	ValidationRequired     = "VALIDATION_REQUIRED"

	// ==================== Resources (RESOURCE_) ====================
	ResourceNotFound      = "RESOURCE_NOT_FOUND"
	ResourceAlreadyExists = "RESOURCE_ALREADY_EXISTS"
	ResourceConflict      = "RESOURCE_CONFLICT"

	// ==================== Linking (LINK_) ====================
	LinkMemberNotFound    = "LINK_MEMBER_NOT_FOUND"
	LinkLastNameMismatch  = "LINK_LAST_NAME_MISMATCH"
	LinkTicketNotFound    = "LINK_TICKET_NOT_FOUND"
	LinkTicketUnavailable = "LINK_TICKET_UNAVAILABLE"
	LinkNoPhoneOnFile     = "LINK_NO_PHONE_ON_FILE"
	LinkSMSFailed         = "LINK_SMS_FAILED"
	LinkNotPending        = "LINK_NOT_PENDING"

	// ==================== Verification (VERIFY_) ====================
	VerifyInvalidLink     = "VERIFY_INVALID_LINK"
	VerifyInvalidPIN      = "VERIFY_INVALID_PIN"
	VerifyTooManyAttempts = "VERIFY_TOO_MANY_ATTEMPTS"

	// ==================== Settlement ====================
	// Lower-case codes are part of the tab-closing contract with clients.
	SettlementNoActiveTicket       = "no_active_ticket"
	SettlementNothingDue           = "nothing_due"
	SettlementInvalidTip           = "invalid_tip"
	SettlementMissingPaymentMethod = "customer_missing_payment_method"
	SettlementChargeFailed         = "stripe_charge_failed"
	SettlementPOSFailedRefunded    = "omnivore_payment_failed_refunded"
	SettlementUnreconciled         = "pos_post_failed_and_refund_failed"
	SettlementUnrecorded           = "settled_but_not_recorded"
	SettlementConcurrent           = "concurrent_modification"

	// ==================== Reviews (REVIEW_) ====================
	ReviewNotFound      = "REVIEW_NOT_FOUND"
	ReviewInvalidRating = "REVIEW_INVALID_RATING"
	ReviewAlreadyExists = "REVIEW_ALREADY_EXISTS"
	ReviewTabNotClosed  = "REVIEW_TAB_NOT_CLOSED"

	// ==================== Export (EXPORT_) ====================
	ExportFailed = "EXPORT_FAILED"

	// ==================== Rate limiting ====================
	RateLimited = "RATE_LIMITED"

	// ==================== Internal (INTERNAL_) ====================
	InternalServerError   = "INTERNAL_SERVER_ERROR"
	InternalDatabaseError = "INTERNAL_DATABASE_ERROR"
	InternalExternalAPI   = "INTERNAL_EXTERNAL_API"
	InternalConfigError   = "INTERNAL_CONFIG_ERROR"
)

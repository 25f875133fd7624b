package constants

// Error codes used in API responses.
// These are the machine-readable codes returned in the "error" field.
const (
	// Common error codes
	CodeInvalidRequest = "INVALID_REQUEST"
	CodeInternalError  = "INTERNAL_ERROR"
	CodeForbidden      = "FORBIDDEN"
	CodeNotFound       = "NOT_FOUND"
	CodeUnauthorized   = "UNAUTHORIZED"
	CodeRateLimited    = "RATE_LIMITED"

	// Shortener-specific codes
	CodeInvalidDestination = "INVALID_DESTINATION"
	CodeInvalidKey         = "INVALID_KEY"
	CodeKeyTaken           = "KEY_TAKEN"
	CodeTooManyTags        = "TOO_MANY_TAGS"
	CodeLinkNotFound       = "LINK_NOT_FOUND"

	// Success codes
	CodeLinkCreated = "LINK_CREATED"
	CodeLinkUpdated = "LINK_UPDATED"
	CodeLinkDeleted = "LINK_DELETED"
	CodeLinkFound   = "LINK_FOUND"
	CodeStatsFound  = "STATS_FOUND"
)

package constants

// Error messages used in API responses.
// These are the human-readable messages returned in the "message" field.
const (
	// Common messages
	MsgInvalidRequestBody = "Invalid request body"
	MsgInternalError      = "An internal error occurred"
	MsgUnauthorized       = "Authentication required"
	MsgForbidden          = "You do not have permission to modify this link"
	MsgRateLimited        = "Too many requests"

	// Shortener-specific messages
	MsgInvalidDestination = "Invalid destination URL (must be http or https)"
	MsgInvalidKey         = "Invalid key"
	MsgKeyTaken           = "Custom key is already taken"
	MsgTooManyTags        = "Too many tags"
	MsgLinkNotFound       = "Link not found"
)

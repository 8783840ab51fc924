package apis

const (
	// HTTP Request Fields
	RequestID = "X-Request-Id"

	// Context keys
	RequestIDKey = "requestId"
)

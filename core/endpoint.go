package core

type Endpoint struct {
	Path     string
	Method   string
	Handler  func(ctx *RequestContext) error
	Metadata EndpointMetadata
}

type EndpointMetadata struct {
	OperationID string
	Description string
	// Protected endpoints require a resolved session before the handler runs.
	Protected bool
	// Stream endpoints hold the connection open.
	Stream bool
}

type RequestContext struct {
	// Framework-agnostic context
	Request interface{} // could be *http.Request, fiber.Ctx, etc
	Session *Session
}

// ErrorResponse represents an error response structure
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

package errors

const (
	HttpInternalError     = "internal_error"
	HttpInvalidJsonError  = "invalid_json"
	HttpInvalidDefinition = "invalid_definition"
	HttpDuplicateError    = "duplicate_definition"
	HttpNotFoundError     = "definition_not_found"
	HttpNotAcceptingError = "not_accepting"
)

// ErrorResponse is the error response body for API errors.
type ErrorResponse struct {
	ErrorType string      `json:"error_type"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}

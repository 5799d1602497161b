package errs

// HTTPBody is the JSON shape returned by the HTTP façade for any error.
type HTTPBody struct {
	Error     string `json:"error"`
	Category  string `json:"category"`
	RequestID string `json:"request_id,omitempty"`
}

// ToHTTP maps err to a status code and response body for the façade layer.
// Uncategorised errors map to CategoryServer (500) with the fixed message.
func ToHTTP(err error) (int, HTTPBody) {
	var e *Error
	if !asError(err, &e) {
		e = New(CategoryServer, "unexpected error")
	}
	return e.Category.HTTPStatus(), HTTPBody{
		Error:     e.Message,
		Category:  string(e.Category),
		RequestID: e.RequestID,
	}
}

package c4dto

// DomainError is the error body clients switch on. Code is stable; Message is
// for display.
type DomainError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
	GameID    string `json:"gameId,omitempty"`
}

func (e DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return "connect4 service error"
}

// ErrorEnvelope wraps DomainError on the wire.
type ErrorEnvelope struct {
	Error DomainError `json:"error"`
}

package app

import "fmt"

// DomainError is a service-level failure with an HTTP status attached. The
// handler layer serializes Code, Message and Details into the error body;
// anything else coming out of the service maps to a generic 500.
type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// domainError keeps the call sites compact. Details carries optional
// field-level validation info and may be nil.
func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

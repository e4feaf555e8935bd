package core

import (
	"errors"
	"fmt"
)

const (
	CloseNormal          = 1000
	CloseGoingAway       = 1001
	CloseAbnormal        = 1006
	CloseUnauthorized    = 4001
	CloseForbidden       = 4003
	CloseSessionNotFound = 4004
	CloseSessionEnded    = 4010
)

// CloseError reports why a transport ended.
type CloseError struct {
	Code   int
	Reason string
}

func (e *CloseError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("closed with code %d", e.Code)
	}
	return fmt.Sprintf("closed with code %d: %s", e.Code, e.Reason)
}

// CloseCode extracts the close code, treating any other error as abnormal.
func CloseCode(err error) int {
	var ce *CloseError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return CloseAbnormal
}

package hostworker

import "errors"

const (
	CodeHostUnavailable = "HOST_UNAVAILABLE"
	CodeNodeNotFound    = "NOT_FOUND"
	CodeNotText         = "NOT_TEXT"
)

var ErrUnavailable = errors.New("host worker unavailable")

type RemoteError struct {
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code == "" {
		return e.Message
	}
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

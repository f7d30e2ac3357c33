package errinfo

import "fmt"

// ErrorInfo is the structured error carried by every failed command.
type ErrorInfo struct {
	ErrorCode string `json:"error_code"`
	Command   string `json:"command,omitempty"`
	NodeID    string `json:"node_id,omitempty"`
	Retryable bool   `json:"retryable"`
	Detail    string `json:"detail,omitempty"`
}

const (
	CodeValidationFailed     = "VALIDATION_FAILED"
	CodeNotFound             = "NOT_FOUND"
	CodeUnsupportedOperation = "UNSUPPORTED_OPERATION"
	CodeItemFailed           = "ITEM_FAILED"
	CodeUnknownCommand       = "UNKNOWN_COMMAND"
	CodeHostUnavailable      = "HOST_UNAVAILABLE"
	CodeHostFailed           = "HOST_FAILED"
	CodeCanceled             = "CANCELED"
)

func (e *ErrorInfo) Error() string {
	if e == nil {
		return ""
	}
	if e.Detail != "" {
		return e.Detail
	}
	return e.ErrorCode
}

// Message is the text placed in the outbound command-error envelope.
func (e *ErrorInfo) Message() string {
	if e == nil {
		return ""
	}
	if e.Detail == "" {
		return e.ErrorCode
	}
	return e.Detail
}

func ValidationFailed(command, detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeValidationFailed,
		Command:   command,
		Retryable: false,
		Detail:    detail,
	}
}

func MissingParam(command, name string) *ErrorInfo {
	return ValidationFailed(command, fmt.Sprintf("Missing %s parameter", name))
}

func NotFound(command, nodeID string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeNotFound,
		Command:   command,
		NodeID:    nodeID,
		Retryable: false,
		Detail:    fmt.Sprintf("Node not found with ID: %s", nodeID),
	}
}

func UnsupportedOperation(command, nodeID, detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeUnsupportedOperation,
		Command:   command,
		NodeID:    nodeID,
		Retryable: false,
		Detail:    detail,
	}
}

func ItemFailed(command, nodeID, detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeItemFailed,
		Command:   command,
		NodeID:    nodeID,
		Retryable: true,
		Detail:    detail,
	}
}

func UnknownCommand(command string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeUnknownCommand,
		Command:   command,
		Retryable: false,
		Detail:    fmt.Sprintf("Unknown command: %s", command),
	}
}

func HostUnavailable(command, detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeHostUnavailable,
		Command:   command,
		Retryable: true,
		Detail:    detail,
	}
}

func HostFailed(command, detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeHostFailed,
		Command:   command,
		Retryable: false,
		Detail:    detail,
	}
}

func Canceled(command, detail string) *ErrorInfo {
	return &ErrorInfo{
		ErrorCode: CodeCanceled,
		Command:   command,
		Retryable: false,
		Detail:    detail,
	}
}

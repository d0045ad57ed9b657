package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 20000-20999: Isolation errors (pipes, spawning, child setup)
// 21000-21999: Configuration errors
const (
	// ========== System & Common Errors (10000-10999) ==========

	// Success
	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	Timeout             ErrorCode = 10008

	// ========== Isolation Errors (20000-20999) ==========

	// Channels (20000-20099)
	PipeCreateFailed  ErrorCode = 20000
	PipeCloseFailed   ErrorCode = 20001
	ChannelRoleTaken  ErrorCode = 20002
	ChannelPollFailed ErrorCode = 20003

	// Computations (20100-20199)
	ComputationNotFound   ErrorCode = 20100
	ComputationRegistered ErrorCode = 20101

	// Child process (20200-20299)
	SpawnFailed        ErrorCode = 20200
	ChildSetupFailed   ErrorCode = 20201
	ChildUnkillable    ErrorCode = 20202
	ChildRequestBroken ErrorCode = 20203

	// ========== Configuration Errors (21000-21999) ==========
	ConfigLoadFailed ErrorCode = 21000
	ConfigInvalid    ErrorCode = 21001
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	Success:             "Success",
	InternalServerError: "Internal error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	Timeout:             "Operation timeout",

	PipeCreateFailed:  "Failed to create pipe",
	PipeCloseFailed:   "Failed to close pipe",
	ChannelRoleTaken:  "Channel end already taken",
	ChannelPollFailed: "Failed to wait for channel readiness",

	ComputationNotFound:   "Computation not registered",
	ComputationRegistered: "Computation already registered",

	SpawnFailed:        "Failed to spawn child process",
	ChildSetupFailed:   "Child process setup failed",
	ChildUnkillable:    "Child process could not be reaped after kill",
	ChildRequestBroken: "Child init request is malformed",

	ConfigLoadFailed: "Failed to load configuration",
	ConfigInvalid:    "Invalid configuration",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// IsIsolation reports whether the code belongs to the isolation range.
func (c ErrorCode) IsIsolation() bool {
	return c >= 20000 && c < 21000
}

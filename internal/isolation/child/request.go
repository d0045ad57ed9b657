package child

import (
	"encoding/json"
	"os"

	pkgerrors "isolator/pkg/errors"
)

// InitEnv carries the JSON-encoded InitRequest into the child.
const InitEnv = "ISOLATE_INIT"

// Descriptor numbers of the inherited channel writers in the child.
const (
	LogFD    = 3
	ResultFD = 4
)

// Exit codes of the child. Anything but ExitOK makes the supervisor record
// a ChildFailure.
const (
	ExitOK                 = 0
	ExitUnknownComputation = 2
	ExitComputationFailed  = 3
	ExitEncodeFailed       = 4
	ExitSetupFailed        = 5
)

// ResourceLimit bounds the child with rlimits. Zero fields are not applied.
type ResourceLimit struct {
	CPUTimeSec int64 `json:"cpuTimeSec" yaml:"cpuTimeSec"`
	MemoryMB   int64 `json:"memoryMB" yaml:"memoryMB"`
	StackMB    int64 `json:"stackMB" yaml:"stackMB"`
	OutputMB   int64 `json:"outputMB" yaml:"outputMB"`
	PIDs       int64 `json:"pids" yaml:"pids"`
}

// Hardening is applied in the child before the computation runs.
type Hardening struct {
	Limits         ResourceLimit `json:"limits" yaml:"limits"`
	SeccompProfile string        `json:"seccompProfile" yaml:"seccompProfile"`
}

// Empty reports whether no hardening was requested.
func (h Hardening) Empty() bool {
	return h.Limits == (ResourceLimit{}) && h.SeccompProfile == ""
}

// InitRequest tells the child what to run.
type InitRequest struct {
	Computation string    `json:"computation"`
	Hardening   Hardening `json:"hardening"`
}

// EncodeInit renders req as the value of InitEnv.
func EncodeInit(req InitRequest) (string, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return "", pkgerrors.Wrap(err, pkgerrors.ChildRequestBroken)
	}
	return string(data), nil
}

// DecodeInit parses the value of InitEnv.
func DecodeInit(raw string) (InitRequest, error) {
	var req InitRequest
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		return InitRequest{}, pkgerrors.Wrapf(err, pkgerrors.ChildRequestBroken, "decode init request")
	}
	if req.Computation == "" {
		return InitRequest{}, pkgerrors.Newf(pkgerrors.ChildRequestBroken, "init request names no computation")
	}
	return req, nil
}

// IsChild reports whether this process was started as an isolated child.
func IsChild() bool {
	_, ok := os.LookupEnv(InitEnv)
	return ok
}

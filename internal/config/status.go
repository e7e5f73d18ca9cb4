package config

import (
	"os"
	"strings"
)

type StatusKind int

const (
	// StatusCompiled: nothing is required from the environment.
	StatusCompiled StatusKind = iota
	// StatusCompiledIgnored: required keys are missing but the operator
	// chose to run on compiled-in defaults.
	StatusCompiledIgnored
	// StatusRuntime: every required key is present.
	StatusRuntime
	// StatusRuntimeError: required keys are missing. Blocks the dashboard.
	StatusRuntimeError
)

func (k StatusKind) String() string {
	switch k {
	case StatusCompiled:
		return "compiled"
	case StatusCompiledIgnored:
		return "compiledIgnored"
	case StatusRuntime:
		return "runtime"
	case StatusRuntimeError:
		return "runtimeError"
	default:
		return "unknown"
	}
}

type Status struct {
	Kind    StatusKind `json:"kind"`
	Missing []string   `json:"missing,omitempty"`
}

func (s Status) Blocking() bool { return s.Kind == StatusRuntimeError }

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// CheckEnv classifies the environment against the required keys.
func CheckEnv(required []string, ignoreMissing bool, lookup LookupFunc) Status {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if len(required) == 0 {
		return Status{Kind: StatusCompiled}
	}
	var missing []string
	for _, key := range required {
		if v, ok := lookup(key); !ok || strings.TrimSpace(v) == "" {
			missing = append(missing, key)
		}
	}
	switch {
	case len(missing) == 0:
		return Status{Kind: StatusRuntime}
	case ignoreMissing:
		return Status{Kind: StatusCompiledIgnored, Missing: missing}
	default:
		return Status{Kind: StatusRuntimeError, Missing: missing}
	}
}

// EnvStatus checks the settings' own required keys against the process
// environment.
func (s Settings) EnvStatus() Status {
	return CheckEnv(s.RequiredEnv, s.IgnoreMissingEnv, os.LookupEnv)
}

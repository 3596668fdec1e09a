// Package xerrors declares the typed error kinds from the orchestrator's
// error-handling design (§7): each is a small struct implementing error,
// in the style of aistore's cmn/cos (ErrNotFound, Errs), rather than
// sentinel values. None of these cross an RPC boundary — FlowBuilder
// failures are still converted to reason strings exactly as specified;
// these types are for callers within a single process (the CLI and
// TransferManager internals).
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package xerrors

import (
	"fmt"
	"sync"
)

type (
	// SpecError: malformed CLI host spec.
	SpecError struct {
		Spec string
	}
	// ResolveError: DNS lookup failure for a host.
	ResolveError struct {
		Host string
		Err  error
	}
	// TransportError: SSH auth failure, unknown host, or premature
	// remote-agent exit.
	TransportError struct {
		Host   string
		Reason string
		Stderr string
	}
	// EndpointCreationError: factory could not build one endpoint.
	EndpointCreationError struct {
		Spec   string
		Reason string
	}
	// ProtocolMismatchError: post-creation version check failed.
	ProtocolMismatchError struct {
		Versions []string
	}
	// RuntimeFlowError: a mover child exited non-zero.
	RuntimeFlowError struct {
		Target   string
		ExitCode int
	}
	// CorruptRestartError: the restart cookie decodes to an offset
	// beyond the destination file.
	CorruptRestartError struct {
		Cookie string
		Offset int64
		Size   int64
	}
)

func (e *SpecError) Error() string {
	return fmt.Sprintf("invalid host spec %q: want [[user@]host[,host]:]path", e.Spec)
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("cannot resolve host %q: %v", e.Host, e.Err)
}

func (e *TransportError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("transport to %s failed: %s\n%s", e.Host, e.Reason, e.Stderr)
	}
	return fmt.Sprintf("transport to %s failed: %s", e.Host, e.Reason)
}

func (e *EndpointCreationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("failed creating endpoint for %s: %s", e.Spec, e.Reason)
	}
	return fmt.Sprintf("failed creating endpoint for %s", e.Spec)
}

func (e *ProtocolMismatchError) Error() string {
	return fmt.Sprintf("mover protocol versions do not match across endpoints: %v", e.Versions)
}

func (e *RuntimeFlowError) Error() string {
	return fmt.Sprintf("mover for %s exited with code %d", e.Target, e.ExitCode)
}

func (e *CorruptRestartError) Error() string {
	return fmt.Sprintf("corrupt restart cookie %s: offset %d exceeds destination size %d",
		e.Cookie, e.Offset, e.Size)
}

// Errs aggregates multiple non-fatal errors seen across several endpoints
// (e.g. one reason string per failed shard) the way cos.Errs does,
// deduplicating identical messages.
type Errs struct {
	mu   sync.Mutex
	errs []error
}

func (e *Errs) Add(err error) {
	if err == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, existing := range e.errs {
		if existing.Error() == err.Error() {
			return
		}
	}
	e.errs = append(e.errs, err)
}

func (e *Errs) Cnt() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.errs)
}

func (e *Errs) Error() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.errs) == 0 {
		return ""
	}
	s := e.errs[0].Error()
	if len(e.errs) > 1 {
		s = fmt.Sprintf("%s (and %d more error(s))", s, len(e.errs)-1)
	}
	return s
}

func (e *Errs) All() []error {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]error, len(e.errs))
	copy(out, e.errs)
	return out
}

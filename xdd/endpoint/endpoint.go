// Package endpoint provides the transport-agnostic Endpoint interface
// the TransferManager drives (spec §9 "Remote proxy vs local object")
// and the EndpointFactory that instantiates one per shard, local or
// tunneled through a Transport, with post-creation sanity checks
// (spec §4.7). Adapted from the teacher's cluster Smap/Snode resolution
// idiom: a factory that turns a host descriptor into a live handle,
// generalized from node-membership lookup to transport selection.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package endpoint

import (
	"net"

	"github.com/bws-xdd/xddmcp/xdd/flow"
	"github.com/bws-xdd/xddmcp/xdd/flowbuilder"
	"github.com/bws-xdd/xddmcp/xdd/naming"
	"github.com/bws-xdd/xddmcp/xdd/nlog"
	"github.com/bws-xdd/xddmcp/xdd/transport"
	"github.com/bws-xdd/xddmcp/xdd/xerrors"
)

// Endpoint is the uniform surface the TransferManager drives, whether
// the underlying FlowBuilder lives in this process or across an SSH
// tunnel (spec §4.4, §9).
type Endpoint interface {
	PathExists(path string) bool
	PathIsDir(path string) bool
	GetFileSize(path string) (int64, error)
	BuildWalk(source, target string, targetExists, targetIsDir bool) (naming.WalkResult, error)
	CreateDirectory(path string) error
	CreateSymlink(path, target string) error
	CreateEmptyFile(path string) error
	RemoveRestartCookie(filename string) error
	GetRestartOffset(filename string) (int64, error)
	MarkTransferCompleted(destRoot, destRelPath string) error
	TransferIsComplete(destRoot, destRelPath string) bool
	RemoveTransferProgressFile(destRoot string) error
	Hostname() (string, error)
	ProtocolVersion() string
	HasPreallocateAvailable() bool

	BuildFlow(isSink bool, reqSize int64, flowIdx, numFlows int, ifaces []flow.Iface, directIO, serial bool)
	StartFlow(target string, flowSize int64, restart bool, restartOffset int64)
	PollFlow() bool
	CompletionStatus() (code int, done bool)
	CurrentByte() int64
	Output(flushAll bool) string
	CancelFlow() error
	ErrorString() string

	// Close tears down any transport backing this endpoint (a no-op
	// for local endpoints).
	Close() error
}

// localEndpoint wraps an in-process FlowBuilder; Close is a no-op.
type localEndpoint struct {
	*flowbuilder.FlowBuilder
}

func (localEndpoint) Close() error { return nil }

// remoteEndpoint wraps a FlowBuilder proxied over an RPC client
// tunneled through a Transport; Close shuts down the transport.
type remoteEndpoint struct {
	*transport.Client
	tr *transport.Transport
}

func (r remoteEndpoint) Close() error {
	return r.tr.Shutdown()
}

// HostSpec describes one source or sink location, already split from
// the `[[user@]host[,host]:]path` grammar (spec §6) by the caller.
type HostSpec struct {
	User string
	Host string // empty or "localhost" for the local machine
	Path string
}

func (h HostSpec) isLocal() bool {
	if h.Host == "" || h.Host == "localhost" {
		return true
	}
	addrs, err := net.LookupHost(h.Host)
	if err != nil {
		return false
	}
	for _, a := range addrs {
		if a == "127.0.0.1" || a == "::1" {
			return true
		}
	}
	return false
}

// Factory instantiates endpoints and remembers which ones to tear down
// on Close (spec §4.7).
type Factory struct {
	MoverPath string
	MoverExe  string
	SSHUser   string

	transports []*transport.Transport
}

// New constructs one Endpoint for spec, configured with the given Flow
// side parameters, then builds its Flow immediately (spec §4.7's
// "Call buildFlow with the shard identity and the side-specific
// flags").
func (f *Factory) New(spec HostSpec, isSink bool, reqSize int64, flowIdx, numFlows int, ifaces []flow.Iface, directIO, serial bool) (Endpoint, error) {
	if spec.isLocal() {
		fb := flowbuilder.New(flowbuilder.WithMoverPath(f.MoverPath), flowbuilder.WithMoverExe(f.MoverExe))
		ep := localEndpoint{fb}
		ep.BuildFlow(isSink, reqSize, flowIdx, numFlows, ifaces, directIO, serial)
		return ep, nil
	}

	user := spec.User
	if user == "" {
		user = f.SSHUser
	}
	tr, err := transport.Dial(spec.Host, user)
	if err != nil {
		return nil, &xerrors.EndpointCreationError{Spec: spec.Host, Reason: err.Error()}
	}
	f.transports = append(f.transports, tr)
	client := tr.Client()
	ep := remoteEndpoint{Client: client, tr: tr}
	ep.BuildFlow(isSink, reqSize, flowIdx, numFlows, ifaces, directIO, serial)
	return ep, nil
}

// Close tears down every Transport this factory opened, even if some
// fail, returning the collected errors as an *xerrors.Errs (nil when
// none failed) (spec §4.5 "all three steps run even if earlier ones
// raised").
func (f *Factory) Close() error {
	var errs xerrors.Errs
	for _, tr := range f.transports {
		if err := tr.Shutdown(); err != nil {
			errs.Add(err)
		}
	}
	f.transports = nil
	if errs.Cnt() == 0 {
		return nil
	}
	return &errs
}

// CheckSanity implements spec §4.7's post-creation sanity checks: every
// endpoint must report the same non-empty protocol version; a sink
// lacking preallocate support is a warning, not a failure.
func CheckSanity(endpoints []Endpoint, sinks []Endpoint) error {
	var versions []string
	seen := map[string]bool{}
	for _, ep := range endpoints {
		v := ep.ProtocolVersion()
		if !seen[v] {
			versions = append(versions, v)
			seen[v] = true
		}
	}
	if len(versions) != 1 || versions[0] == "" {
		return &xerrors.ProtocolMismatchError{Versions: versions}
	}
	for _, s := range sinks {
		if !s.HasPreallocateAvailable() {
			host, _ := s.Hostname()
			nlog.Warningf("mover on %s does not support preallocation; destination will not be preallocated", host)
		}
	}
	return nil
}

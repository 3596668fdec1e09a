// Package flowbuilder implements the FlowBuilder façade (spec §4.4): a
// thin object owning exactly one Flow at a time plus the filesystem
// probes a TransferManager needs, exposed as flat request/response calls
// so the same type can be driven locally or proxied over RPC. Adapted
// from the teacher's reb (rebalance) manager's single-xaction-at-a-time
// ownership pattern, generalized from bucket objects to arbitrary paths.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package flowbuilder

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/bws-xdd/xddmcp/xdd/flow"
	"github.com/bws-xdd/xddmcp/xdd/naming"
)

// ProgressMarkerName is the well-known basename for the line-delimited
// completed-paths file living at the destination root (spec §3).
const ProgressMarkerName = ".xddmcp.xpg"

// FlowBuilder is the local, in-process implementation of the façade.
// It is not safe for concurrent use: the lifecycle invariants in spec §3
// forbid concurrent transfers to the same destination, so a single
// FlowBuilder is only ever driven by one TransferManager goroutine at a
// time (mirrored by the RemoteFlowBuilder RPC wrapper, which adds no
// additional locking of its own).
type FlowBuilder struct {
	moverPath   string
	moverExeArg string
	namingStyle naming.Strategy

	cur    *flow.Flow
	status flow.Status
}

// Option configures a FlowBuilder at construction time.
type Option func(*FlowBuilder)

// WithMoverPath pins the directory the mover executable is searched in,
// instead of relying on $PATH.
func WithMoverPath(dir string) Option {
	return func(fb *FlowBuilder) { fb.moverPath = dir }
}

// WithMoverExe overrides the mover's executable name (default "xdd").
func WithMoverExe(name string) Option {
	return func(fb *FlowBuilder) { fb.moverExeArg = name }
}

// WithStrictNaming selects the PosixPlus symlink-rewriting strategy
// instead of the default raw-target Posix strategy (spec §4.2).
func WithStrictNaming() Option {
	return func(fb *FlowBuilder) { fb.namingStyle = naming.PosixPlus() }
}

func New(opts ...Option) *FlowBuilder {
	fb := &FlowBuilder{namingStyle: naming.Posix()}
	for _, o := range opts {
		o(fb)
	}
	return fb
}

// BuildFlow configures (or reconfigures) the single Flow this builder
// owns. A FlowBuilder owns exactly one Flow at a time (spec §4.4).
func (fb *FlowBuilder) BuildFlow(isSink bool, reqSize int64, flowIdx, numFlows int, ifaces []flow.Iface, directIO, serial bool) {
	fb.cur = flow.New(flow.Config{
		IsSink:      isSink,
		ReqSize:     reqSize,
		FlowIdx:     flowIdx,
		NumFlows:    numFlows,
		Ifaces:      ifaces,
		DirectIO:    directIO,
		Serial:      serial,
		MoverPath:   fb.moverPath,
		MoverExeArg: fb.moverExeArg,
	})
}

// --- filesystem probes ---

func (fb *FlowBuilder) PathExists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

func (fb *FlowBuilder) PathIsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func (fb *FlowBuilder) GetFileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// BuildWalk delegates to the Namer (spec §4.2) using this builder's
// configured naming strategy.
func (fb *FlowBuilder) BuildWalk(source, target string, targetExists, targetIsDir bool) (naming.WalkResult, error) {
	return fb.namingStyle.BuildDirsFilesLinks(source, target, targetExists, targetIsDir)
}

// CreateDirectory is idempotent: it succeeds if the directory already
// exists (spec §4.4).
func (fb *FlowBuilder) CreateDirectory(path string) error {
	return os.MkdirAll(path, 0755)
}

// CreateSymlink is idempotent: it succeeds if the link already points
// at target (spec §4.4).
func (fb *FlowBuilder) CreateSymlink(path, target string) error {
	existing, err := os.Readlink(path)
	if err == nil {
		if existing == target {
			return nil
		}
		if rmErr := os.Remove(path); rmErr != nil {
			return rmErr
		}
	}
	return os.Symlink(target, path)
}

func (fb *FlowBuilder) CreateEmptyFile(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	return f.Close()
}

func (fb *FlowBuilder) RemoveRestartCookie(filename string) error {
	if fb.cur == nil {
		return nil
	}
	err := os.Remove(fb.cur.RestartCookieName(filename))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (fb *FlowBuilder) GetRestartOffset(filename string) (int64, error) {
	return fb.cur.GetRestartOffset(filename)
}

// MarkTransferCompleted appends destRelPath to the progress marker at
// destRoot, creating it if necessary (spec §3's append-only marker).
func (fb *FlowBuilder) MarkTransferCompleted(destRoot, destRelPath string) error {
	f, err := os.OpenFile(filepath.Join(destRoot, ProgressMarkerName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(destRelPath + "\n")
	return err
}

// TransferIsComplete reports whether destRelPath already appears in the
// progress marker at destRoot.
func (fb *FlowBuilder) TransferIsComplete(destRoot, destRelPath string) bool {
	f, err := os.Open(filepath.Join(destRoot, ProgressMarkerName))
	if err != nil {
		return false
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if strings.TrimRight(sc.Text(), "\r") == destRelPath {
			return true
		}
	}
	return false
}

func (fb *FlowBuilder) RemoveTransferProgressFile(destRoot string) error {
	err := os.Remove(filepath.Join(destRoot, ProgressMarkerName))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (fb *FlowBuilder) Hostname() (string, error) {
	return os.Hostname()
}

func (fb *FlowBuilder) ProtocolVersion() string {
	return fb.cur.ProtocolVersion()
}

func (fb *FlowBuilder) HasPreallocateAvailable() bool {
	return fb.cur.HasPreallocate()
}

// --- Flow lifecycle proxies ---
//
// These are exposed as flat calls against the single Status this
// builder currently owns, rather than returning the Status interface
// itself, so the same method set is RPC-proxy-friendly (spec §4.4,
// §9 "Remote proxy vs local object"): net/rpc cannot marshal an
// interface value, but it can marshal these primitive results.

func (fb *FlowBuilder) StartFlow(target string, flowSize int64, restart bool, restartOffset int64) {
	fb.status = fb.cur.Start(target, flowSize, restart, restartOffset)
}

func (fb *FlowBuilder) PollFlow() bool {
	return fb.status.Poll()
}

func (fb *FlowBuilder) CompletionStatus() (code int, done bool) {
	return fb.status.Completion()
}

func (fb *FlowBuilder) CurrentByte() int64 {
	return fb.status.CurrentByte()
}

func (fb *FlowBuilder) Output(flushAll bool) string {
	return fb.status.Output(flushAll)
}

func (fb *FlowBuilder) CancelFlow() error {
	return fb.status.Cancel()
}

func (fb *FlowBuilder) ErrorString() string {
	return fb.status.ErrorString()
}

// Package flow supervises one mover child process for one shard: it
// assembles the mover command line, runs preflight checks, spawns the
// child, and parses its heartbeat. Adapted from the teacher's Flow class
// (flow.py): same preconditions, same command-line contract (spec §4.3),
// same restart-cookie naming, translated from Python's os.access/fcntl
// idioms to golang.org/x/sys/unix.Access and exec.Cmd writer-backed
// buffers.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package flow

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/bws-xdd/xddmcp/xdd/debug"
	"github.com/bws-xdd/xddmcp/xdd/partition"
)

// Iface is one -e2e network endpoint tuple: (host, port, threads[, numa]).
type Iface struct {
	Host    string
	Port    int
	Threads int
	NUMA    string // empty when not supplied
}

// Config is a side's (source or sink) uniform per-shard configuration,
// built once by the EndpointFactory and never allowed to drift between
// shards on the same side (spec §9 "side-local flags vs per-shard flags").
type Config struct {
	IsSink      bool
	ReqSize     int64
	FlowIdx     int
	NumFlows    int
	Ifaces      []Iface
	DirectIO    bool
	Serial      bool
	Verbose     bool
	Timestamp   bool
	MoverPath   string // directory containing the mover executable, or "" to search $PATH
	MoverExeArg string // override executable name, defaults to "xdd"
}

func (c Config) moverExe() string {
	name := c.MoverExeArg
	if name == "" {
		name = "xdd"
	}
	if c.MoverPath != "" {
		return filepath.Join(c.MoverPath, name)
	}
	if p, err := exec.LookPath(name); err == nil {
		return p
	}
	return name
}

// Flow is the per-shard mover supervisor (spec §4.3). It is deliberately
// not safe for concurrent use by multiple goroutines at once, matching
// the one-Flow-per-FlowBuilder-at-a-time contract in §4.4.
type Flow struct {
	cfg     Config
	moverExe string
	reasons []string

	target      string
	dataSize    int64
	startOffset int64
	restart     bool
	restartByte int64
}

func New(cfg Config) *Flow {
	return &Flow{cfg: cfg, moverExe: cfg.moverExe()}
}

// RestartCookieName returns "<dir>/.<base>-<idx>-<n>.xrf" (spec §3/§6).
func (f *Flow) RestartCookieName(filename string) string {
	dir, base := filepath.Split(filename)
	name := fmt.Sprintf(".%s-%d-%d.xrf", base, f.cfg.FlowIdx, f.cfg.NumFlows)
	return filepath.Join(dir, name)
}

// GetRestartOffset reads the cookie beside filename and returns the
// offset it records, or an error describing why it could not (missing,
// or corrupt per spec §7 CorruptRestartError semantics — the caller
// decides fatality; this just reports what was found).
func (f *Flow) GetRestartOffset(filename string) (int64, error) {
	name := f.RestartCookieName(filename)
	data, err := os.ReadFile(name)
	if err != nil {
		return 0, fmt.Errorf("unable to open restart cookie %s: %w", name, err)
	}
	line := strings.SplitN(string(data), "\n", 2)[0]
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return 0, fmt.Errorf("corrupt restart cookie found in %s", name)
	}
	offset, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt restart cookie found in %s: %w", name, err)
	}
	debug.Assertf(offset >= 0, "negative restart offset in %s: %d", name, offset)
	return offset, nil
}

func (f *Flow) addReason(format string, args ...any) {
	f.reasons = append(f.reasons, fmt.Sprintf(format, args...))
}

// checkPreconditions mirrors Flow.checkPreconditions in flow.py: mover
// existence, restart-cookie sanity, then side-specific permission checks.
func (f *Flow) checkPreconditions() bool {
	if st, err := os.Stat(f.moverExe); err != nil || st.IsDir() || unix.Access(f.moverExe, unix.X_OK) != nil {
		f.addReason("Unable to execute: %s", f.moverExe)
		return false
	}

	if f.restartByte > 0 {
		size, err := fileSize(f.target)
		if err != nil || f.restartByte > size {
			f.addReason("Corrupt restart cookie: %s", f.RestartCookieName(f.target))
			f.addReason("Restart offset larger than destination file")
			return false
		}
	}

	if f.cfg.IsSink {
		return f.checkSinkPreconditions()
	}
	return f.checkSourcePreconditions()
}

func (f *Flow) checkSinkPreconditions() bool {
	passes := true
	info, err := os.Lstat(f.target)
	switch {
	case err == nil:
		mode := info.Mode()
		switch {
		case mode&os.ModeSymlink != 0 || mode.IsRegular():
			if unix.Access(f.target, unix.W_OK) != nil {
				f.addReason("Cannot write source: %s", f.target)
				passes = false
			}
		case mode&os.ModeDevice != 0 && mode&os.ModeCharDevice == 0:
			if unix.Access(f.target, unix.W_OK) != nil {
				f.addReason("Cannot write block device: %s", f.target)
				passes = false
			}
		case mode&os.ModeCharDevice != 0:
			switch {
			case unix.Access(f.target, unix.W_OK) != nil:
				f.addReason("Cannot write character device: %s", f.target)
				passes = false
			case f.cfg.DirectIO:
				f.addReason("Device does not support Direct I/O: %s", f.target)
				passes = false
			case f.restart:
				f.addReason("Character device does not support restart: %s", f.target)
				passes = false
			}
		default:
			f.addReason("Target is unsupported file type: %s", f.target)
			passes = false
		}
	default:
		parent := filepath.Dir(f.target)
		if _, statErr := os.Stat(parent); statErr != nil {
			f.addReason("Parent directory does not exist: %s", f.target)
			passes = false
		} else if unix.Access(parent, unix.W_OK) != nil {
			f.addReason("Cannot write parent directory %s", f.target)
			passes = false
		}
	}

	if f.restart {
		parent := filepath.Dir(f.target)
		if _, err := os.Stat(parent); err != nil || unix.Access(parent, unix.W_OK) != nil {
			f.addReason("Restart requires write access to destination parent directory")
			passes = false
		}
	}
	return passes
}

func (f *Flow) checkSourcePreconditions() bool {
	info, err := os.Lstat(f.target)
	if err != nil {
		f.addReason("Target does not exist: %s", f.target)
		return false
	}
	mode := info.Mode()
	switch {
	case mode&os.ModeSymlink != 0 || mode.IsRegular():
		if unix.Access(f.target, unix.R_OK) != nil {
			f.addReason("Cannot read source: %s", f.target)
			return false
		}
	case mode&os.ModeDevice != 0 && mode&os.ModeCharDevice == 0:
		if unix.Access(f.target, unix.R_OK) != nil {
			f.addReason("Cannot read block device: %s", f.target)
			return false
		}
	case mode&os.ModeCharDevice != 0:
		if unix.Access(f.target, unix.R_OK) != nil {
			f.addReason("Cannot read character device: %s", f.target)
			return false
		}
		if f.cfg.DirectIO {
			f.addReason("Device does not support Direct I/O: %s", f.target)
			return false
		}
	default:
		f.addReason("Target is unsupported file type: %s", f.target)
		return false
	}
	return true
}

func fileSize(path string) (int64, error) {
	st, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return st.Size(), nil
}

// CreateCommandArgs assembles the mover invocation exactly per spec §4.3.
func (f *Flow) CreateCommandArgs() []string {
	args := []string{f.moverExe, "-target", f.target}
	if f.cfg.IsSink {
		args = append(args, "-op", "write", "-e2e", "isdest")
	} else {
		args = append(args, "-op", "read", "-e2e", "issource")
	}
	args = append(args, "-reqsize", strconv.FormatInt(f.cfg.ReqSize, 10), "-blocksize", "1")
	args = append(args, "-bytes", strconv.FormatInt(f.dataSize, 10))

	for _, i := range f.cfg.Ifaces {
		spec := fmt.Sprintf("%s:%d,%d", i.Host, i.Port, i.Threads)
		if i.NUMA != "" {
			spec += "," + i.NUMA
		}
		args = append(args, "-e2e", "dest", spec)
	}

	if f.cfg.DirectIO {
		args = append(args, "-dio")
	}
	switch {
	case f.cfg.Serial:
		args = append(args, "-serialordering")
	case f.cfg.IsSink:
		args = append(args, "-noordering")
	default:
		args = append(args, "-looseordering")
	}

	if f.restart {
		switch {
		case f.cfg.IsSink:
			cookie := f.RestartCookieName(f.target)
			args = append(args, "-restart", "offset", strconv.FormatInt(f.restartByte, 10))
			args = append(args, "-restart", "enable")
			args = append(args, "-restart", "file", cookie)
		case f.cfg.NumFlows == 1:
			args = append(args, "-restart", "offset", strconv.FormatInt(f.restartByte, 10))
		default:
			args = append(args, "-startoffset", strconv.FormatInt(f.restartByte+f.startOffset, 10))
		}
	}

	if !f.restart && f.cfg.NumFlows > 1 {
		args = append(args, "-startoffset", strconv.FormatInt(f.startOffset, 10))
	}

	if f.cfg.IsSink && f.restartByte == 0 {
		args = append(args, "-preallocate", strconv.FormatInt(f.dataSize, 10))
	}

	args = append(args, "-verbose", "-minall", "-stoponerror")

	if f.cfg.IsSink {
		args = append(args, "-hb", "1", "-hb", "bytes", "-hb", "lf")
	}
	return args
}

// Start begins a shard's transfer, or synthesizes success for a
// zero-length shard, per spec §4.3.
func (f *Flow) Start(target string, flowSize int64, restartFlag bool, restartOffset int64) Status {
	f.target = target
	f.restart = restartFlag
	f.restartByte = restartOffset
	f.reasons = nil

	if f.restart && f.cfg.NumFlows > 1 {
		flowSize -= restartOffset
	}

	shard := partition.Part(f.cfg.NumFlows, f.cfg.ReqSize, flowSize, f.cfg.FlowIdx)
	f.startOffset, f.dataSize = shard.Offset, shard.Length

	if !f.checkPreconditions() {
		return newFailedStatus(f.reasons)
	}

	if f.dataSize == 0 {
		isCreator := f.cfg.FlowIdx == 0 && f.cfg.IsSink
		return newEmptyFileStatus(isCreator, target)
	}

	args := f.CreateCommandArgs()
	cmd := exec.Command(args[0], args[1:]...)
	st := newProcessStatus(cmd, restartOffset)
	cmd.Stdout = st.stdout
	cmd.Stderr = io.MultiWriter(st.stderrAll, st.stderrChunk)

	if err := cmd.Start(); err != nil {
		f.addReason("OS error executing: %s", args[0])
		return newFailedStatus(f.reasons)
	}
	go func() {
		err := cmd.Wait()
		st.finish(err)
	}()
	return st
}

// HasPreallocate reports whether the mover exposes the well-known
// preallocation symbol token (spec §4.4), via `nm <mover>`.
func (f *Flow) HasPreallocate() bool {
	out, err := exec.Command("nm", f.moverExe).Output()
	if err != nil {
		return false
	}
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(line)
		if len(fields) == 3 && fields[2] == PreallocTokenSymbol {
			return true
		}
	}
	return false
}

// ProtocolVersion invokes `<mover> -version` and extracts the version
// string after the colon, or "" if no valid version line is found.
func (f *Flow) ProtocolVersion() string {
	out, err := exec.Command(f.moverExe, "-version").Output()
	if err != nil {
		return ""
	}
	parts := strings.SplitN(strings.TrimSpace(string(out)), ":", 2)
	if len(parts) != 2 {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// PreallocTokenSymbol is the well-known symbol that indicates the mover
// was compiled with filesystem preallocation support (spec §4.4).
const PreallocTokenSymbol = "xgp_xfs_enabled"

// Package xfer implements the TransferManager (spec §4.8): the public
// orchestration entry point that creates endpoints, walks the source
// tree, sequences per-file shard startup/monitoring/teardown, and
// renders progress. Adapted from the teacher's xact/xreg registry +
// single-xaction-at-a-time run loop idiom (xact/xreg/xreg.go), scaled
// down to a single in-process coordinator instead of a cluster-wide
// xaction, and from reb/reb.go's sink-then-source phased startup.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package xfer

import (
	"fmt"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/teris-io/shortid"
	"golang.org/x/sync/errgroup"

	"github.com/bws-xdd/xddmcp/xdd/endpoint"
	"github.com/bws-xdd/xddmcp/xdd/flow"
	"github.com/bws-xdd/xddmcp/xdd/mono"
	"github.com/bws-xdd/xddmcp/xdd/naming"
	"github.com/bws-xdd/xddmcp/xdd/nlog"
	"github.com/bws-xdd/xddmcp/xdd/xerrors"
)

// State is the TransferManager lifecycle (spec §4.8).
type State int

const (
	Configuring State = iota
	Created
	Started
	Monitoring
	Idle
	TornDown
)

// SinkToSourceDelay is the fixed pause between starting all sink shards
// and starting all source shards (spec §4.8, §5).
const SinkToSourceDelay = 800 * time.Millisecond

// HostDescriptor is one participating host's share of the transfer
// (spec §3 HostSpec, restricted to the fields the manager needs beyond
// what endpoint.HostSpec already carries).
type HostDescriptor struct {
	Spec    endpoint.HostSpec
	Threads int
	Ifaces  []flow.Iface
}

// Config is the immutable, CLI-parse-time configuration for one run
// (spec §3 "HostSpec/FlowConfig: created at CLI parse, immutable
// through the run").
type Config struct {
	Sink    HostDescriptor
	Sources []HostDescriptor

	ReqSize      int64
	BasePort     int
	TotalThreads int
	SizeOverride int64 // 0 means probe from source

	DirectIOSink, DirectIOSource bool
	SerialSink, SerialSource     bool
	Resume                       bool
	Interval                     time.Duration
	Verbose                      bool

	MoverPath string
	MoverExe  string
	SSHUser   string
}

// Manager drives one transfer end to end. It is not safe for
// concurrent use by more than one goroutine (spec §5 "cooperative
// single-threaded from the orchestration perspective").
type Manager struct {
	cfg     Config
	factory *endpoint.Factory
	state   State
	runID   string

	sinkShards   []endpoint.Endpoint
	sourceShards []endpoint.Endpoint // flat, in shard-index order
}

func New(cfg Config) *Manager {
	id, err := shortid.Generate()
	if err != nil {
		id = "run"
	}
	return &Manager{
		cfg:     cfg,
		factory: &endpoint.Factory{MoverPath: cfg.MoverPath, MoverExe: cfg.MoverExe, SSHUser: cfg.SSHUser},
		state:   Configuring,
		runID:   id,
	}
}

func (m *Manager) State() State { return m.state }

// Create instantiates one endpoint per shard on the sink host and one
// per shard distributed across the source hosts, then runs the
// post-creation sanity checks (spec §4.7).
func (m *Manager) Create() error {
	if len(m.cfg.Sources) == 0 {
		return fmt.Errorf("at least one source host is required")
	}

	n := m.cfg.TotalThreads
	if n <= 0 {
		n = 1
	}

	sourceHostPerShard := distributeShards(m.cfg.Sources, n)

	m.sinkShards = make([]endpoint.Endpoint, n)
	m.sourceShards = make([]endpoint.Endpoint, n)

	for i := 0; i < n; i++ {
		port := m.cfg.BasePort + i
		peer := flow.Iface{Host: resolveDisplayHost(m.cfg.Sink.Spec), Port: port, Threads: hostThreads(m.cfg.Sink)}

		sinkEp, err := m.factory.New(m.cfg.Sink.Spec, true, m.cfg.ReqSize, i, n, []flow.Iface{peer}, m.cfg.DirectIOSink, m.cfg.SerialSink)
		if err != nil {
			m.factory.Close()
			return err
		}
		m.sinkShards[i] = sinkEp

		src := sourceHostPerShard[i]
		srcPeer := flow.Iface{Host: resolveDisplayHost(m.cfg.Sink.Spec), Port: port, Threads: hostThreads(src)}
		sourceEp, err := m.factory.New(src.Spec, false, m.cfg.ReqSize, i, n, []flow.Iface{srcPeer}, m.cfg.DirectIOSource, m.cfg.SerialSource)
		if err != nil {
			m.factory.Close()
			return err
		}
		m.sourceShards[i] = sourceEp
	}

	all := append(append([]endpoint.Endpoint{}, m.sinkShards...), m.sourceShards...)
	if err := endpoint.CheckSanity(all, m.sinkShards); err != nil {
		m.factory.Close()
		return err
	}

	m.state = Created
	return nil
}

// distributeShards spreads n shards across hosts by even partition,
// with the remainder spread over the leading hosts (spec §3).
func distributeShards(hosts []HostDescriptor, n int) []HostDescriptor {
	out := make([]HostDescriptor, 0, n)
	if len(hosts) == 0 {
		return out
	}
	base := n / len(hosts)
	extra := n % len(hosts)
	for i, h := range hosts {
		count := base
		if i < extra {
			count++
		}
		for j := 0; j < count; j++ {
			out = append(out, h)
		}
	}
	for len(out) < n {
		out = append(out, hosts[len(hosts)-1])
	}
	return out[:n]
}

// hostThreads reports the per-shard thread count the mover on h's side
// should use, falling back to 1 when the CLI left it unset (spec §3
// HostSpec thread distribution).
func hostThreads(h HostDescriptor) int {
	if h.Threads > 0 {
		return h.Threads
	}
	return 1
}

func resolveDisplayHost(spec endpoint.HostSpec) string {
	if spec.Host == "" {
		return "localhost"
	}
	return spec.Host
}

// Result is the outcome of a completed run.
type Result struct {
	FilesTransferred int
	FilesFailed      int
	// Errors holds one formatted "ERROR: <reason>"-style message per
	// failure (spec §7: "one or more ERROR: <reason> lines are
	// printed"), collected from each failed shard's ErrorString().
	Errors []string
}

// Run performs the full per-file sequence (spec §4.8) over every file
// the source walk discovers.
func (m *Manager) Run(sinkPath, sourcePath string, progress ProgressFunc) (Result, error) {
	if m.state != Created {
		return Result{}, fmt.Errorf("transfer manager not in Created state")
	}

	sink := m.sinkShards[0]
	source := m.sourceShards[0]

	destExists := sink.PathExists(sinkPath)
	destIsDir := destExists && sink.PathIsDir(sinkPath)
	if m.cfg.Resume && destExists {
		rel, _ := filepath.Rel(filepath.Dir(sinkPath), sinkPath)
		if sink.TransferIsComplete(filepath.Dir(sinkPath), rel) {
			destExists = false
		}
	}

	walk, err := source.BuildWalk(sourcePath, sinkPath, destExists, destIsDir)
	if err != nil {
		return Result{}, err
	}
	switch walk.Status {
	case naming.StatusNotFound:
		return Result{}, fmt.Errorf("source does not exist: %s", sourcePath)
	case naming.StatusWalkError:
		return Result{}, fmt.Errorf("error walking source tree: %s", sourcePath)
	}

	// The progress marker lives at the destination root: the
	// root-level directory pair's target when the source is a
	// directory tree, or the single file's parent directory otherwise
	// (spec §3 "<destRoot>/.xddmcp.xpg"). Restart cookies live beside
	// each destination file instead (flow.RestartCookieName).
	destRoot := filepath.Dir(sinkPath)
	if len(walk.Dirs) > 0 {
		destRoot = walk.Dirs[0].Dst
	}

	m.state = Started
	for _, d := range walk.Dirs {
		if err := sink.CreateDirectory(d.Dst); err != nil {
			return Result{}, fmt.Errorf("creating directory %s: %w", d.Dst, err)
		}
		_ = sink.MarkTransferCompleted(destRoot, relOrSelf(destRoot, d.Dst))
	}

	var res Result
	for _, fp := range walk.Files {
		rel := relOrSelf(destRoot, fp.Dst)
		if m.cfg.Resume && sink.TransferIsComplete(destRoot, rel) {
			continue
		}

		ok, reasons, err := m.transferOne(fp, destRoot, rel, progress)
		if err != nil {
			nlog.Errorf("transfer of %s failed: %v", fp.Src, err)
			res.Errors = append(res.Errors, err.Error())
		}
		if ok {
			res.FilesTransferred++
		} else {
			res.FilesFailed++
			res.Errors = append(res.Errors, reasons...)
		}
	}

	for _, l := range walk.Links {
		if err := sink.CreateSymlink(l.Dst, l.Target); err != nil {
			nlog.Errorf("creating symlink %s -> %s: %v", l.Dst, l.Target, err)
			res.FilesFailed++
			res.Errors = append(res.Errors, err.Error())
		}
	}

	m.state = Idle
	if res.FilesFailed == 0 {
		_ = sink.RemoveTransferProgressFile(destRoot)
	}
	return res, nil
}

// transferOne runs the full per-file sequence from spec §4.8 step 4.
// It returns whether the file succeeded, and when it did not, one
// formatted reason string per failed shard (spec §7).
func (m *Manager) transferOne(fp naming.FilePair, destRoot, destRel string, progress ProgressFunc) (bool, []string, error) {
	startNS := mono.NanoTime()
	sink := m.sinkShards[0]
	source := m.sourceShards[0]

	size := m.cfg.SizeOverride
	if size == 0 {
		var err error
		size, err = source.GetFileSize(fp.Src)
		if err != nil {
			return false, nil, err
		}
	}

	var restartOffset int64
	if m.cfg.Resume {
		restartOffset, _ = sink.GetRestartOffset(fp.Dst)
		if restartOffset > size {
			err := &xerrors.CorruptRestartError{Cookie: fp.Dst, Offset: restartOffset, Size: size}
			nlog.Errorf("%v", err)
			return false, []string{err.Error()}, nil
		}
	}

	n := len(m.sinkShards)
	for i := 0; i < n; i++ {
		m.sinkShards[i].StartFlow(fp.Dst, size, m.cfg.Resume, restartOffset)
	}
	time.Sleep(SinkToSourceDelay)
	for i := 0; i < n; i++ {
		m.sourceShards[i].StartFlow(fp.Src, size, m.cfg.Resume, restartOffset)
	}

	m.state = Monitoring
	ok, code, reasons := m.monitor(fp, size, restartOffset, progress)
	m.state = Started

	if ok {
		for i := 0; i < n; i++ {
			_ = m.sinkShards[i].RemoveRestartCookie(fp.Dst)
		}
		_ = sink.MarkTransferCompleted(destRoot, destRel)
	} else if len(reasons) == 0 {
		reasons = []string{(&xerrors.RuntimeFlowError{Target: fp.Dst, ExitCode: code}).Error()}
	}
	if m.cfg.Verbose {
		elapsed := time.Duration(mono.NanoTime() - startNS)
		m.logVerbose(fp, size, ok, elapsed)
	}
	return ok, reasons, nil
}

// verboseEvent is the per-file record emitted to the log when -v is set
// (spec §6), one line per completed or failed file so a run can be
// replayed from the log alone.
type verboseEvent struct {
	Run       string `json:"run"`
	Src       string `json:"src"`
	Dst       string `json:"dst"`
	Bytes     int64  `json:"bytes"`
	ElapsedMS int64  `json:"elapsed_ms"`
	Failed    bool   `json:"failed"`
}

func (m *Manager) logVerbose(fp naming.FilePair, size int64, ok bool, elapsed time.Duration) {
	line, err := jsoniter.Marshal(verboseEvent{
		Run: m.runID, Src: fp.Src, Dst: fp.Dst, Bytes: size,
		ElapsedMS: elapsed.Milliseconds(), Failed: !ok,
	})
	if err != nil {
		return
	}
	nlog.Infof("%s", line)
}

// monitor runs the poll loop from spec §4.8 step 4's bullet on
// completion/currentByte aggregation, including the exact progress
// correction described there (kept verbatim per the Open Question
// decision recorded in DESIGN.md not to guess at an updated mover
// contract), save for excluding a not-yet-started/failed flow's -1
// sentinel byte count from the sum, matching the original's
// `if 0 < currentBytes` guard.
func (m *Manager) monitor(fp naming.FilePair, size, restartOffset int64, progress ProgressFunc) (bool, int, []string) {
	numSources := len(m.sourceShards)
	allEndpoints := append(append([]endpoint.Endpoint{}, m.sinkShards...), m.sourceShards...)

	for {
		var g errgroup.Group
		codes := make([]int, len(allEndpoints))
		dones := make([]bool, len(allEndpoints))
		bytes := make([]int64, len(allEndpoints))

		for i, ep := range allEndpoints {
			i, ep := i, ep
			g.Go(func() error {
				codes[i], dones[i] = ep.CompletionStatus()
				bytes[i] = ep.CurrentByte()
				return nil
			})
		}
		_ = g.Wait()

		var sum int64
		for _, b := range bytes {
			if b > 0 {
				sum += b
			}
		}
		sum -= restartOffset
		if numSources > 1 {
			if sum == int64(numSources)*restartOffset {
				sum = restartOffset
			} else {
				sum += restartOffset
			}
		}
		if progress != nil {
			progress(fp.Dst, sum, size)
		}

		allDone := true
		for _, d := range dones {
			if !d {
				allDone = false
				break
			}
		}
		if allDone {
			failed := false
			failCode := 0
			var reasons []string
			for i, code := range codes {
				if code != 0 {
					failed = true
					failCode = code
					if r := allEndpoints[i].ErrorString(); r != "" {
						reasons = append(reasons, r)
					}
					_ = allEndpoints[i].CancelFlow()
				}
			}
			return !failed, failCode, reasons
		}
		time.Sleep(m.cfg.Interval)
	}
}

// TearDown shuts down every Transport the factory opened (spec §4.8
// terminal state, §4.5 teardown).
func (m *Manager) TearDown() error {
	err := m.factory.Close()
	m.state = TornDown
	return err
}

// ProgressFunc renders one progress update (spec §6); transferred and
// total are in bytes.
type ProgressFunc func(path string, transferred, total int64)

func relOrSelf(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return path
	}
	return rel
}

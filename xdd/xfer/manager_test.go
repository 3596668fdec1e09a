package xfer_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/bws-xdd/xddmcp/xdd/endpoint"
	"github.com/bws-xdd/xddmcp/xdd/xfer"
)

// writeFakeMover writes a tiny shell script standing in for the mover
// binary: it answers `-version` for the post-creation sanity check
// (spec §4.7) and otherwise echoes a single heartbeat line carrying
// size bytes before exiting 0, the same shim shape used in the flow
// package's own Flow.Start tests.
func writeFakeMover(dir string, size int64) string {
	path := filepath.Join(dir, "fakemover.sh")
	script := fmt.Sprintf(`#!/bin/sh
if [ "$1" = "-version" ]; then
  echo "xdd:1.0"
  exit 0
fi
printf '\nPass,1,2,%d,Bytes\n' 1>&2
exit 0
`, size)
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		panic(err)
	}
	return path
}

func TestManagerSingleFileTransfer(t *testing.T) {
	sourceDir := t.TempDir()
	sinkDir := t.TempDir()
	moverDir := t.TempDir()

	content := []byte("0123456789abcdef")
	srcPath := filepath.Join(sourceDir, "a.bin")
	if err := os.WriteFile(srcPath, content, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	sinkPath := filepath.Join(sinkDir, "a.bin")

	writeFakeMover(moverDir, int64(len(content)))

	cfg := xfer.Config{
		Sink:         xfer.HostDescriptor{Spec: endpoint.HostSpec{Path: sinkDir}},
		Sources:      []xfer.HostDescriptor{{Spec: endpoint.HostSpec{Path: sourceDir}}},
		ReqSize:      4096,
		BasePort:     41000,
		TotalThreads: 1,
		MoverPath:    moverDir,
		MoverExe:     "fakemover.sh",
	}

	m := xfer.New(cfg)
	if err := m.Create(); err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer m.TearDown()

	var updates int
	res, err := m.Run(sinkPath, srcPath, func(path string, transferred, total int64) {
		updates++
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.FilesFailed != 0 {
		t.Fatalf("FilesFailed = %d, want 0", res.FilesFailed)
	}
	if res.FilesTransferred != 1 {
		t.Fatalf("FilesTransferred = %d, want 1", res.FilesTransferred)
	}
	if updates == 0 {
		t.Fatal("expected at least one progress callback")
	}
}

// TestManagerResumeRemovesCookieAfterSuccess covers spec §8 scenario 5
// (restart after partial write): a pre-existing restart cookie records a
// prior partial transfer, Resume is enabled, the run completes
// successfully, and the cookie is removed afterward so a subsequent run
// does not re-enter resume mode for this file.
func TestManagerResumeRemovesCookieAfterSuccess(t *testing.T) {
	sourceDir := t.TempDir()
	sinkDir := t.TempDir()
	moverDir := t.TempDir()

	content := []byte("0123456789abcdef")
	srcPath := filepath.Join(sourceDir, "a.bin")
	if err := os.WriteFile(srcPath, content, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	sinkPath := filepath.Join(sinkDir, "a.bin")
	// Destination already has the first 8 bytes from a prior, interrupted
	// attempt.
	if err := os.WriteFile(sinkPath, content[:8], 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cookie := filepath.Join(sinkDir, ".a.bin-0-1.xrf")
	if err := os.WriteFile(cookie, []byte("a.bin 0 8\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	writeFakeMover(moverDir, int64(len(content)))

	cfg := xfer.Config{
		Sink:         xfer.HostDescriptor{Spec: endpoint.HostSpec{Path: sinkDir}},
		Sources:      []xfer.HostDescriptor{{Spec: endpoint.HostSpec{Path: sourceDir}}},
		ReqSize:      4096,
		BasePort:     41200,
		TotalThreads: 1,
		Resume:       true,
		MoverPath:    moverDir,
		MoverExe:     "fakemover.sh",
	}

	m := xfer.New(cfg)
	if err := m.Create(); err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer m.TearDown()

	res, err := m.Run(sinkPath, srcPath, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.FilesFailed != 0 {
		t.Fatalf("FilesFailed = %d, want 0 (errors: %v)", res.FilesFailed, res.Errors)
	}
	if res.FilesTransferred != 1 {
		t.Fatalf("FilesTransferred = %d, want 1", res.FilesTransferred)
	}
	if _, err := os.Stat(cookie); !os.IsNotExist(err) {
		t.Fatalf("expected restart cookie %s to be removed after success, stat err = %v", cookie, err)
	}
}

func TestManagerMissingSourceFails(t *testing.T) {
	sourceDir := t.TempDir()
	sinkDir := t.TempDir()
	moverDir := t.TempDir()
	writeFakeMover(moverDir, 0)

	cfg := xfer.Config{
		Sink:         xfer.HostDescriptor{Spec: endpoint.HostSpec{Path: sinkDir}},
		Sources:      []xfer.HostDescriptor{{Spec: endpoint.HostSpec{Path: sourceDir}}},
		ReqSize:      4096,
		BasePort:     41100,
		TotalThreads: 1,
		MoverPath:    moverDir,
		MoverExe:     "fakemover.sh",
	}
	m := xfer.New(cfg)
	if err := m.Create(); err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer m.TearDown()

	_, err := m.Run(filepath.Join(sinkDir, "missing.bin"), filepath.Join(sourceDir, "missing.bin"), nil)
	if err == nil {
		t.Fatal("expected an error for a nonexistent source path")
	}
}

func TestManagerCreateRequiresAtLeastOneSource(t *testing.T) {
	m := xfer.New(xfer.Config{Sink: xfer.HostDescriptor{Spec: endpoint.HostSpec{Path: t.TempDir()}}})
	if err := m.Create(); err == nil {
		t.Fatal("expected an error when no source hosts are configured")
	}
}

package endpoint

import (
	"testing"

	"github.com/bws-xdd/xddmcp/xdd/flow"
	"github.com/bws-xdd/xddmcp/xdd/naming"
)

// fakeEndpoint is a minimal Endpoint stub for exercising CheckSanity
// without standing up a real Flow or transport.
type fakeEndpoint struct {
	version     string
	preallocate bool
	host        string
}

func (f fakeEndpoint) PathExists(string) bool { return false }
func (f fakeEndpoint) PathIsDir(string) bool  { return false }
func (f fakeEndpoint) GetFileSize(string) (int64, error) { return 0, nil }
func (f fakeEndpoint) BuildWalk(string, string, bool, bool) (naming.WalkResult, error) {
	return naming.WalkResult{}, nil
}
func (f fakeEndpoint) CreateDirectory(string) error { return nil }
func (f fakeEndpoint) CreateSymlink(string, string) error { return nil }
func (f fakeEndpoint) CreateEmptyFile(string) error { return nil }
func (f fakeEndpoint) RemoveRestartCookie(string) error { return nil }
func (f fakeEndpoint) GetRestartOffset(string) (int64, error) { return 0, nil }
func (f fakeEndpoint) MarkTransferCompleted(string, string) error { return nil }
func (f fakeEndpoint) TransferIsComplete(string, string) bool { return false }
func (f fakeEndpoint) RemoveTransferProgressFile(string) error { return nil }
func (f fakeEndpoint) Hostname() (string, error) { return f.host, nil }
func (f fakeEndpoint) ProtocolVersion() string { return f.version }
func (f fakeEndpoint) HasPreallocateAvailable() bool { return f.preallocate }
func (f fakeEndpoint) BuildFlow(bool, int64, int, int, []flow.Iface, bool, bool) {}
func (f fakeEndpoint) StartFlow(string, int64, bool, int64) {}
func (f fakeEndpoint) PollFlow() bool { return true }
func (f fakeEndpoint) CompletionStatus() (int, bool) { return 0, true }
func (f fakeEndpoint) CurrentByte() int64 { return 0 }
func (f fakeEndpoint) Output(bool) string { return "" }
func (f fakeEndpoint) CancelFlow() error { return nil }
func (f fakeEndpoint) ErrorString() string { return "" }
func (f fakeEndpoint) Close() error { return nil }

func TestCheckSanityMatchingVersions(t *testing.T) {
	eps := []Endpoint{
		fakeEndpoint{version: "1.2", preallocate: true, host: "a"},
		fakeEndpoint{version: "1.2", preallocate: true, host: "b"},
	}
	if err := CheckSanity(eps, eps); err != nil {
		t.Fatalf("CheckSanity: unexpected error %v", err)
	}
}

func TestCheckSanityMismatchedVersions(t *testing.T) {
	eps := []Endpoint{
		fakeEndpoint{version: "1.2", host: "a"},
		fakeEndpoint{version: "1.3", host: "b"},
	}
	if err := CheckSanity(eps, nil); err == nil {
		t.Fatal("expected ProtocolMismatchError")
	}
}

func TestCheckSanityNoPreallocateIsWarningOnly(t *testing.T) {
	sinks := []Endpoint{fakeEndpoint{version: "1.2", preallocate: false, host: "sink"}}
	eps := []Endpoint{sinks[0], fakeEndpoint{version: "1.2", preallocate: true, host: "src"}}
	if err := CheckSanity(eps, sinks); err != nil {
		t.Fatalf("missing preallocate support must not fail CheckSanity: %v", err)
	}
}

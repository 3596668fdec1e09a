package progress_test

import (
	"strings"
	"testing"

	"github.com/bws-xdd/xddmcp/xdd/progress"
)

func TestHumanBytesFormatting(t *testing.T) {
	var sb strings.Builder
	r := progress.NewRenderer(&sb)
	r.Update("/tmp/a.bin", 1048576, 2097152)
	out := sb.String()
	if !strings.Contains(out, "50.0%") {
		t.Fatalf("expected 50.0%% in output, got %q", out)
	}
	if !strings.Contains(out, "1.0MiB") {
		t.Fatalf("expected human byte count in output, got %q", out)
	}
}

func TestDoneEndsWithNewline(t *testing.T) {
	var sb strings.Builder
	r := progress.NewRenderer(&sb)
	r.Update("/tmp/a.bin", 0, 100)
	r.Done()
	if !strings.HasSuffix(sb.String(), "\n") {
		t.Fatal("expected Done() to terminate the line with a newline")
	}
}

package hostspec_test

import (
	"testing"

	"github.com/bws-xdd/xddmcp/xdd/hostspec"
)

func TestParse(t *testing.T) {
	cases := []struct {
		raw   string
		hosts []hostspec.Entry
		path  string
	}{
		{"/tmp/a.bin", nil, "/tmp/a.bin"},
		{"host1:/data/a.bin", []hostspec.Entry{{Host: "host1"}}, "/data/a.bin"},
		{"user@host1:/data/a.bin", []hostspec.Entry{{User: "user", Host: "host1"}}, "/data/a.bin"},
		{"h1,user2@h2:/data/a.bin", []hostspec.Entry{{Host: "h1"}, {User: "user2", Host: "h2"}}, "/data/a.bin"},
	}
	for _, c := range cases {
		got, err := hostspec.Parse(c.raw)
		if err != nil {
			t.Fatalf("Parse(%q) error: %v", c.raw, err)
		}
		if got.Path != c.path {
			t.Errorf("Parse(%q).Path = %q, want %q", c.raw, got.Path, c.path)
		}
		if len(got.Hosts) != len(c.hosts) {
			t.Fatalf("Parse(%q).Hosts = %v, want %v", c.raw, got.Hosts, c.hosts)
		}
		for i := range got.Hosts {
			if got.Hosts[i] != c.hosts[i] {
				t.Errorf("Parse(%q).Hosts[%d] = %v, want %v", c.raw, i, got.Hosts[i], c.hosts[i])
			}
		}
	}
}

func TestParseRejectsMalformedSpec(t *testing.T) {
	for _, raw := range []string{"a:b:/path", "h1,:/path", ":/path"} {
		if _, err := hostspec.Parse(raw); err == nil {
			t.Errorf("Parse(%q) expected error, got nil", raw)
		}
	}
}

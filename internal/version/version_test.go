package version

import (
	"strings"
	"testing"
)

func TestCurrentDefaults(t *testing.T) {
	b := Current()
	if b.Version == "" || b.Commit == "" || b.Date == "" {
		t.Fatalf("build info must not be empty: %+v", b)
	}
	if !strings.HasPrefix(b.String(), "crowngate version=") {
		t.Fatalf("unexpected string: %s", b.String())
	}
}

func TestShort(t *testing.T) {
	oldVersion, oldCommit := version, commit
	t.Cleanup(func() { version, commit = oldVersion, oldCommit })

	version, commit = "1.4.0", "unknown"
	if got := Short(); got != "1.4.0" {
		t.Fatalf("Short() = %q, want 1.4.0", got)
	}

	commit = "0123456789abcdef"
	if got := Short(); got != "1.4.0+0123456" {
		t.Fatalf("Short() = %q, want 1.4.0+0123456", got)
	}
}

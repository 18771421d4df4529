package session

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseTwoPaths(t *testing.T) {
	cases := []struct {
		in     string
		wantA  string
		wantB  string
		wantOK bool
	}{
		{"/tmp/src.bin /tmp/dst.bin", "/tmp/src.bin", "/tmp/dst.bin", true},
		{"onlyoneword", "", "", false},
		{"a b c", "a", "b c", true},
	}
	for _, c := range cases {
		a, b, ok := parseTwoPaths([]byte(c.in + "\x00"))
		if ok != c.wantOK || a != c.wantA || b != c.wantB {
			t.Errorf("parseTwoPaths(%q) = (%q, %q, %v), want (%q, %q, %v)",
				c.in, a, b, ok, c.wantA, c.wantB, c.wantOK)
		}
	}
}

func TestValidateUploadDestRejectsExisting(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "dst.bin")
	if err := os.WriteFile(dest, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := validateUploadDest(dest); err == nil {
		t.Fatal("expected error for pre-existing destination")
	}
}

func TestValidateUploadDestRejectsMissingParent(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "no-such-dir", "dst.bin")
	if err := validateUploadDest(dest); err == nil {
		t.Fatal("expected error for missing parent directory")
	}
}

func TestValidateUploadDestAcceptsFreshPath(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "dst.bin")
	if err := validateUploadDest(dest); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateDownloadSrcRejectsMissing(t *testing.T) {
	if err := validateDownloadSrc(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("expected error for missing source")
	}
}

func TestValidateDownloadSrcRejectsDirectory(t *testing.T) {
	if err := validateDownloadSrc(t.TempDir()); err == nil {
		t.Fatal("expected error for directory source")
	}
}

func TestValidateDownloadSrcAcceptsRegularFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	if err := os.WriteFile(src, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := validateDownloadSrc(src); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

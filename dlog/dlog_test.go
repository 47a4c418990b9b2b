package dlog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	if ParseLevel("debug") != Debug {
		t.Fatalf("ParseLevel(debug) != Debug")
	}
	if ParseLevel("info") != Info {
		t.Fatalf("ParseLevel(info) != Info")
	}
	if ParseLevel("bogus") != Info {
		t.Fatalf("ParseLevel(bogus) should default to Info")
	}
}

func TestDebugfGatedByLevel(t *testing.T) {
	dir := t.TempDir()
	root, err := New(Info, dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer root.Close()

	l := root.For("test")
	l.Debugf("should not appear")

	debugRoot, err := New(Debug, dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer debugRoot.Close()
	dl := debugRoot.For("test")
	dl.Debugf("should appear %s", "here")

	data, err := os.ReadFile(filepath.Join(dir, "runtime.log"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if strings.Contains(string(data), "should not appear") {
		t.Fatalf("Debugf at Info level was logged: %q", data)
	}
	if !strings.Contains(string(data), "test: should appear here") {
		t.Fatalf("Debugf at Debug level was not logged: %q", data)
	}
}

func TestForPrefixesLines(t *testing.T) {
	root, err := New(Info, "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l := root.For("dispatch")
	if !strings.HasSuffix(l.prefix, ": ") || !strings.HasPrefix(l.prefix, "dispatch") {
		t.Fatalf("prefix = %q", l.prefix)
	}
}

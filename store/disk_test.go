package store

import "testing"

func TestDiskPlaceholderStyles(t *testing.T) {
	sqliteDisk := &Disk{driver: "sqlite3"}
	if got := sqliteDisk.placeholder(1); got != "?" {
		t.Fatalf("sqlite3 placeholder = %q, want ?", got)
	}

	pgDisk := &Disk{driver: "postgres"}
	if got := pgDisk.placeholder(2); got != "$2" {
		t.Fatalf("postgres placeholder = %q, want $2", got)
	}
}

func TestEncodeDecodeSmallValueUncompressed(t *testing.T) {
	d := &Disk{driver: "sqlite3"}
	raw, err := d.encode("hello")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != "hello" {
		t.Fatalf("decode = %q, want hello", got)
	}
}

func TestEncodeDecodeLargeValueCompressed(t *testing.T) {
	d := &Disk{driver: "sqlite3"}
	big := make([]byte, compressThreshold*4)
	for i := range big {
		big[i] = byte('a' + i%26)
	}
	raw, err := d.encode(string(big))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != string(big) {
		t.Fatalf("round trip mismatch, got %d bytes want %d", len(got), len(big))
	}
}

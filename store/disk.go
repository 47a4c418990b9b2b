package store

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"time"

	"git.sr.ht/~sircmpwn/go-bare"
	"github.com/klauspost/compress/flate"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// queryTimeout bounds every on-disk store operation, matching the
// teacher's sqliteQueryTimeout convention.
const queryTimeout = 5 * time.Second

// compressThreshold is the value size, in bytes, above which a value is
// flate-compressed before being BARE-encoded, so small values (the
// common case for bot variables) pay no compression overhead.
const compressThreshold = 256

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS kv (
	key TEXT PRIMARY KEY,
	value BLOB NOT NULL
);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS kv (
	key TEXT PRIMARY KEY,
	value BYTEA NOT NULL
);
`

// envelope is the BARE-encoded record stored in the value column: a
// compression flag plus the (possibly compressed) payload bytes.
type envelope struct {
	Compressed bool
	Payload    []byte
}

// Disk is the on-disk key-value store handed to modules, backed by
// either sqlite3 (default) or postgres.
type Disk struct {
	db     *sql.DB
	driver string
}

// Open opens (creating if necessary) the on-disk store. driver is
// "sqlite3" or "postgres"; source is the driver-specific DSN (a file
// path for sqlite3).
func Open(driver, source string) (*Disk, error) {
	db, err := sql.Open(driver, source)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", driver, err)
	}

	schema := sqliteSchema
	if driver == "postgres" {
		schema = postgresSchema
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}

	return &Disk{db: db, driver: driver}, nil
}

// placeholder returns the n'th bind parameter marker in this backend's
// native style: "$n" for postgres, "?" for sqlite3.
func (d *Disk) placeholder(n int) string {
	if d.driver == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// Close closes the underlying database handle.
func (d *Disk) Close() error {
	return d.db.Close()
}

func (d *Disk) encode(value string) ([]byte, error) {
	env := envelope{Payload: []byte(value)}
	if len(value) > compressThreshold {
		var buf bytes.Buffer
		fw, err := flate.NewWriter(&buf, flate.DefaultCompression)
		if err != nil {
			return nil, fmt.Errorf("store: new flate writer: %w", err)
		}
		if _, err := fw.Write([]byte(value)); err != nil {
			return nil, fmt.Errorf("store: compress value: %w", err)
		}
		if err := fw.Close(); err != nil {
			return nil, fmt.Errorf("store: close flate writer: %w", err)
		}
		env.Compressed = true
		env.Payload = buf.Bytes()
	}
	return bare.Marshal(&env)
}

func decode(data []byte) (string, error) {
	var env envelope
	if err := bare.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("store: decode value: %w", err)
	}
	if !env.Compressed {
		return string(env.Payload), nil
	}
	fr := flate.NewReader(bytes.NewReader(env.Payload))
	defer fr.Close()
	out, err := io.ReadAll(fr)
	if err != nil {
		return "", fmt.Errorf("store: decompress value: %w", err)
	}
	return string(out), nil
}

// Get implements dispatch.KV.
func (d *Disk) Get(key string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	var raw []byte
	query := "SELECT value FROM kv WHERE key = " + d.placeholder(1)
	err := d.db.QueryRowContext(ctx, query, key).Scan(&raw)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("store: get %q: %w", key, err)
	}
	value, err := decode(raw)
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Set implements dispatch.KV.
func (d *Disk) Set(key, value string) error {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	raw, err := d.encode(value)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(
		"INSERT INTO kv (key, value) VALUES (%s, %s) ON CONFLICT (key) DO UPDATE SET value = excluded.value",
		d.placeholder(1), d.placeholder(2))
	_, err = d.db.ExecContext(ctx, query, key, raw)
	if err != nil {
		return fmt.Errorf("store: set %q: %w", key, err)
	}
	return nil
}

// Delete implements dispatch.KV.
func (d *Disk) Delete(key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	query := "DELETE FROM kv WHERE key = " + d.placeholder(1)
	if _, err := d.db.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("store: delete %q: %w", key, err)
	}
	return nil
}

// Package config implements the on-disk JSON configuration document: the
// typed getters/setters, durable-save discipline and cross-field
// invariants described in §3/§4.8. It is grounded on the atomic
// temp-file-then-rename style used by the teacher's database layer and
// on the field layout of the original implementation's dbotconf.py.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Connection holds the parameters needed to dial and register on an IRC
// network.
type Connection struct {
	Network        string `json:"network"`
	Port           int    `json:"port"`
	SSL            bool   `json:"ssl"`
	NetPassword    string `json:"net_password,omitempty"`
	Nickname       string `json:"nickname"`
	Username       string `json:"username"`
	Realname       string `json:"realname"`
	Authentication string `json:"authentication,omitempty"` // "sasl" | "nickserv" | ""
	AuthPassword   string `json:"auth_password,omitempty"`
	QuitMsg        string `json:"quitmsg"`
	MsgDelay       int    `json:"msg_delay"`
}

// Modules holds the module-loading and access-control fields under
// irc.modules.
type Modules struct {
	Load          []string            `json:"load"`
	Paths         []string            `json:"paths"`
	GlobalPrefix  string              `json:"global_prefix"`
	ChannelPrefix map[string]string   `json:"channel_prefix"`
	Blacklist     map[string][]string `json:"blacklist"`
	Whitelist     map[string][]string `json:"whitelist"`
}

// IRC holds everything under the top-level "irc" key.
type IRC struct {
	Owners     []string   `json:"owners"`
	Connection Connection `json:"connection"`
	Channels   map[string]string `json:"channels"`
	Modules    Modules    `json:"modules"`
	UserACL    []string   `json:"user_acl"`
}

// Sys holds everything under the top-level "sys" key.
type Sys struct {
	LogLevel string `json:"log_level"`
	LogDir   string `json:"log_dir,omitempty"`
}

// Document is the full config.json shape.
type Document struct {
	Sys Sys `json:"sys"`
	IRC IRC `json:"irc"`
}

// defaultDocument returns a Document with every documented default
// filled in, for use when fields are absent from the file on disk.
func defaultDocument() Document {
	return Document{
		Sys: Sys{LogLevel: "info"},
		IRC: IRC{
			Channels: map[string]string{},
			Modules: Modules{
				GlobalPrefix:  ".",
				ChannelPrefix: map[string]string{},
				Blacklist:     map[string][]string{},
				Whitelist:     map[string][]string{},
			},
			Connection: Connection{MsgDelay: 1},
		},
	}
}

// Store is the shared, concurrency-safe configuration store: concurrent
// reads, exclusive writes, every mutating call durably saved before it
// returns (§4.8, §5).
type Store struct {
	path string

	mu  sync.RWMutex
	doc Document
}

// Load reads the document at path, applying documented defaults for any
// field a sparse file omits. A missing file is not an error: Load
// returns a Store seeded with defaults, so that a first run can create
// it via Save.
func Load(path string) (*Store, error) {
	doc := defaultDocument()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Store{path: path, doc: doc}, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if doc.IRC.Modules.GlobalPrefix == "" {
		doc.IRC.Modules.GlobalPrefix = "."
	}
	if doc.IRC.Connection.MsgDelay == 0 {
		doc.IRC.Connection.MsgDelay = 1
	}
	if doc.IRC.Channels == nil {
		doc.IRC.Channels = map[string]string{}
	}
	if doc.IRC.Modules.ChannelPrefix == nil {
		doc.IRC.Modules.ChannelPrefix = map[string]string{}
	}
	if doc.IRC.Modules.Blacklist == nil {
		doc.IRC.Modules.Blacklist = map[string][]string{}
	}
	if doc.IRC.Modules.Whitelist == nil {
		doc.IRC.Modules.Whitelist = map[string][]string{}
	}

	s := &Store{path: path, doc: doc}
	if errs := s.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("config: %s: %w", path, errors.Join(errs...))
	}
	return s, nil
}

// Snapshot returns a copy of the full document, safe to read without
// holding the store's lock further.
func (s *Store) Snapshot() Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc
}

// Save durably persists the current document: marshal, write to a temp
// file in the same directory, then rename over the target, so a crash
// mid-write never leaves a truncated config.json.
func (s *Store) Save() error {
	s.mu.RLock()
	data, err := json.MarshalIndent(s.doc, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".config-*.json.tmp")
	if err != nil {
		return fmt.Errorf("config: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("config: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("config: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("config: rename into place: %w", err)
	}
	return nil
}

// mutate runs fn against the document under an exclusive lock, then
// durably saves. Every setter is built on this.
func (s *Store) mutate(fn func(*Document)) error {
	s.mu.Lock()
	fn(&s.doc)
	s.mu.Unlock()
	return s.Save()
}

// SetOwners replaces irc.owners.
func (s *Store) SetOwners(owners []string) error {
	return s.mutate(func(d *Document) { d.IRC.Owners = owners })
}

// SetChannel adds or updates a channel's key (empty string for none).
func (s *Store) SetChannel(name, key string) error {
	return s.mutate(func(d *Document) { d.IRC.Channels[name] = key })
}

// RemoveChannel deletes a channel from irc.channels.
func (s *Store) RemoveChannel(name string) error {
	return s.mutate(func(d *Document) { delete(d.IRC.Channels, name) })
}

// SetModuleBlacklist sets the channel set blacklisting module m,
// rejecting the call if m is already whitelisted anywhere (§3
// invariant: at most one of blacklist[m]/whitelist[m] is non-empty).
func (s *Store) SetModuleBlacklist(m string, channels []string) error {
	s.mu.Lock()
	if len(s.doc.IRC.Modules.Whitelist[m]) > 0 {
		s.mu.Unlock()
		return fmt.Errorf("config: module %q already has a whitelist; clear it before setting a blacklist", m)
	}
	s.doc.IRC.Modules.Blacklist[m] = channels
	s.mu.Unlock()
	return s.Save()
}

// SetModuleWhitelist is the whitelist counterpart of SetModuleBlacklist.
func (s *Store) SetModuleWhitelist(m string, channels []string) error {
	s.mu.Lock()
	if len(s.doc.IRC.Modules.Blacklist[m]) > 0 {
		s.mu.Unlock()
		return fmt.Errorf("config: module %q already has a blacklist; clear it before setting a whitelist", m)
	}
	s.doc.IRC.Modules.Whitelist[m] = channels
	s.mu.Unlock()
	return s.Save()
}

// SetChannelPrefix overrides the command prefix for one channel; prefix
// must be exactly one character (§3 invariant).
func (s *Store) SetChannelPrefix(channel, prefix string) error {
	if len(prefix) != 1 {
		return fmt.Errorf("config: channel_prefix for %q must be exactly one character, got %q", channel, prefix)
	}
	return s.mutate(func(d *Document) { d.IRC.Modules.ChannelPrefix[channel] = prefix })
}

// AppendUserACL appends one serialized UACL entry.
func (s *Store) AppendUserACL(entry string) error {
	return s.mutate(func(d *Document) { d.IRC.UserACL = append(d.IRC.UserACL, entry) })
}

// SetUserACL replaces the entire UACL list, e.g. after purging expired
// entries at startup.
func (s *Store) SetUserACL(entries []string) error {
	return s.mutate(func(d *Document) { d.IRC.UserACL = entries })
}

// EffectivePrefix returns the command prefix that applies in channel:
// its override if one is configured, else the global prefix.
func (d Document) EffectivePrefix(channel string) string {
	if p, ok := d.IRC.Modules.ChannelPrefix[channel]; ok {
		return p
	}
	return d.IRC.Modules.GlobalPrefix
}

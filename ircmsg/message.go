// Package ircmsg implements the wire-level parsing and formatting of IRC
// protocol messages, per RFC 1459/2812 and the subset of IRCv3 the bot
// speaks (CAP, SASL, and inbound message tags).
//
// The in-memory shape of a parsed message mirrors gopkg.in/irc.v3's
// Message/Prefix types closely enough that callers already familiar with
// that library will feel at home; Tags reuses irc.v3's Tags type
// directly rather than redefining it, while Parse below implements the
// exact grammar and edge cases this bot depends on rather than
// delegating the whole message to that library's Parse.
package ircmsg

import (
	"strings"
	"unicode/utf8"

	irc "gopkg.in/irc.v3"
)

// MaxLineLength is the maximum size, in bytes, of an outbound line
// including the trailing CRLF.
const MaxLineLength = 512

// Prefix identifies the origin of a message: a server name, or a
// nickname with optional user/host.
type Prefix struct {
	Nickname string
	User     string
	Host     string
}

// String renders the prefix the way it appeared on the wire (without the
// leading ':').
func (p *Prefix) String() string {
	if p == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(p.Nickname)
	if p.User != "" {
		b.WriteByte('!')
		b.WriteString(p.User)
	}
	if p.Host != "" {
		b.WriteByte('@')
		b.WriteString(p.Host)
	}
	return b.String()
}

// IsServer reports whether the prefix looks like a bare server name
// rather than a user hostmask.
func (p *Prefix) IsServer() bool {
	return p != nil && p.User == "" && p.Host == ""
}

// Message is a parsed inbound or outbound IRC protocol message.
type Message struct {
	Raw     []byte
	Tags    irc.Tags
	Prefix  *Prefix
	Command string
	Params  []string
}

// Trailing returns the last parameter, or "" if there are none. It exists
// for readability at call sites that only care about the trailing text of
// a PRIVMSG/NOTICE.
func (m *Message) Trailing() string {
	if len(m.Params) == 0 {
		return ""
	}
	return m.Params[len(m.Params)-1]
}

// ParamOr returns the i'th parameter, or def if there are fewer than i+1
// parameters.
func (m *Message) ParamOr(i int, def string) string {
	if i < 0 || i >= len(m.Params) {
		return def
	}
	return m.Params[i]
}

// needsTrailingColon reports whether, when p is formatted as the last
// parameter of a command line, it requires the leading ':' marker: it is
// empty, starts with ':', or contains a space.
func needsTrailingColon(p string) bool {
	return p == "" || p[0] == ':' || strings.IndexByte(p, ' ') >= 0
}

// Format renders m as a wire line, without the trailing CRLF. It is the
// inverse of Parse: for any command/params pair produced by Parse, Format
// followed by Parse again yields the same command and params (the parser
// round-trip property).
func Format(command string, params []string) string {
	var b strings.Builder
	b.WriteString(command)
	for i, p := range params {
		b.WriteByte(' ')
		last := i == len(params)-1
		if last && needsTrailingColon(p) {
			b.WriteByte(':')
		}
		b.WriteString(p)
	}
	return b.String()
}

// byteLen returns the length, in bytes, of the wire line that Format would
// produce for command+params.
func byteLen(command string, params []string) int {
	return len(Format(command, params))
}

// truncateUTF8 returns the longest prefix of s, up to n bytes, that does
// not split a UTF-8 code point.
func truncateUTF8(s string, n int) string {
	if n >= len(s) {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

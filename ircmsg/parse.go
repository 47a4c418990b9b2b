package ircmsg

import (
	"fmt"
	"strings"

	irc "gopkg.in/irc.v3"
)

// ParseError reports that a line could not be turned into a Message. The
// caller is expected to log it at debug level and drop the line; a
// malformed line never breaks the connection (spec: parse errors are
// recoverable).
type ParseError struct {
	Line   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed irc message %q: %s", e.Line, e.Reason)
}

// Parse decodes one line of bytes (without a terminating CRLF) into a
// Message.
//
// The grammar follows RFC 2812 section 2.3.1 with one deliberate
// deviation, noted below, required by this bot's wire compatibility
// tests:
//
//  1. Invalid UTF-8 is replaced rather than rejected.
//  2. An optional leading ':' prefix is split off and parsed into
//     nickname[!user][@host].
//  3. The remainder is split once on " :" (space-colon): everything
//     before becomes up to 14 "middle" parameters (split on spaces), and
//     everything after becomes one trailing parameter that may itself
//     contain spaces.
//  4. Edge case: if splitting the middle region on spaces already yields
//     15 pieces, there is no room left for a distinct trailing parameter.
//     In that case a literal " :" found inside what would have been the
//     16th token is NOT treated as a trailing marker; it is folded back
//     into the 15th (last) middle parameter as literal text, joined by
//     " :". This only matters for malformed/overlong lines and keeps the
//     parser total rather than erroring.
func Parse(line string) (*Message, error) {
	raw := []byte(line)
	line = strings.Map(func(r rune) rune {
		if r == '�' {
			return '?'
		}
		return r
	}, strings.ToValidUTF8(line, "�"))

	if line == "" {
		return nil, &ParseError{Line: line, Reason: "empty line"}
	}

	msg := &Message{Raw: raw}

	rest := line
	if rest[0] == '@' {
		tagTok, remainder, ok := cutSpace(rest[1:])
		if !ok {
			return nil, &ParseError{Line: line, Reason: "tags with no command"}
		}
		tags, err := irc.ParseTags(tagTok)
		if err != nil {
			return nil, &ParseError{Line: line, Reason: "malformed message tags: " + err.Error()}
		}
		msg.Tags = tags
		rest = remainder
		if rest == "" {
			return nil, &ParseError{Line: line, Reason: "missing command"}
		}
	}
	if rest[0] == ':' {
		prefixTok, remainder, ok := cutSpace(rest[1:])
		if !ok || prefixTok == "" {
			return nil, &ParseError{Line: line, Reason: "empty prefix"}
		}
		msg.Prefix = parsePrefix(prefixTok)
		rest = remainder
	}

	cmdTok, remainder, ok := cutSpace(rest)
	if !ok {
		cmdTok = rest
		remainder = ""
	}
	if cmdTok == "" {
		return nil, &ParseError{Line: line, Reason: "missing command"}
	}
	msg.Command = strings.ToUpper(cmdTok)

	msg.Params = parseParams(remainder)
	return msg, nil
}

// cutSpace splits s once on the first space. ok is false if there is no
// space in s (the whole string is returned as the token, with an empty
// remainder).
func cutSpace(s string) (token, remainder string, ok bool) {
	i := strings.IndexByte(s, ' ')
	if i < 0 {
		return s, "", false
	}
	return s[:i], s[i+1:], true
}

// parsePrefix splits "nick!user@host" (any suffix optional) into a
// Prefix, per spec step 2: split on the first '@' to get the host, then
// split the remainder on the first '!' to get the user; what's left is
// the nickname.
func parsePrefix(tok string) *Prefix {
	p := &Prefix{}
	rest := tok
	if i := strings.IndexByte(rest, '@'); i >= 0 {
		p.Host = rest[i+1:]
		rest = rest[:i]
	}
	if i := strings.IndexByte(rest, '!'); i >= 0 {
		p.User = rest[i+1:]
		rest = rest[:i]
	}
	p.Nickname = rest
	return p
}

const maxMiddleParams = 14

// parseParams implements spec step 4: split the parameter region once on
// " :"; everything before is up to 14 middle parameters split on spaces,
// everything after (if the split happened) is one trailing parameter.
func parseParams(region string) []string {
	if region == "" {
		return nil
	}

	middleRegion := region
	var trailing string
	haveTrailing := false
	if i := strings.Index(region, " :"); i >= 0 {
		middleRegion = region[:i]
		trailing = region[i+2:]
		haveTrailing = true
	} else if strings.HasPrefix(region, ":") {
		// The whole remainder is the trailing parameter (no middles at all).
		middleRegion = ""
		trailing = region[1:]
		haveTrailing = true
	}

	var middles []string
	if middleRegion != "" {
		middles = strings.SplitN(middleRegion, " ", maxMiddleParams+1)
		// A run of consecutive spaces in the wild produces empty tokens;
		// RFC middles may not be empty, so drop them rather than emit
		// spurious blank parameters.
		middles = dropEmpty(middles)
	}

	if !haveTrailing {
		return middles
	}

	if len(middles) >= 15 {
		// Edge case from spec step 4: there is no 16th slot. Treat the
		// " :" we found as literal content of the last middle parameter.
		middles[len(middles)-1] = middles[len(middles)-1] + " :" + trailing
		return middles
	}

	return append(middles, trailing)
}

func dropEmpty(ss []string) []string {
	out := ss[:0]
	for _, s := range ss {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

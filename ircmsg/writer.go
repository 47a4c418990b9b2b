package ircmsg

import "strings"

// stripCRLF removes CR and LF from s, as required before any argument is
// placed on the wire (a stray CR/LF could inject a second command).
func stripCRLF(s string) string {
	if strings.IndexAny(s, "\r\n") < 0 {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '\r' || r == '\n' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Build assembles cmds and an optional trailing text into a single wire
// line (without CRLF), normalizing every argument per the wire writer
// contract (§4.3 step 1-2): strip CR/LF from each argument, then if text
// is present join cmds with spaces and append " :text", otherwise just
// join cmds with spaces.
func Build(cmds []string, text string, hasText bool) string {
	clean := make([]string, len(cmds))
	for i, c := range cmds {
		clean[i] = stripCRLF(c)
	}
	head := strings.Join(clean, " ")
	if !hasText {
		return head
	}
	return head + " :" + stripCRLF(text)
}

// Split assembles cmds and text into the line "cmds :text" (without
// CRLF) and breaks it into one or more lines such that each, with CRLF
// appended, is at most msgLen+2 bytes. If the line already fits, Split
// returns it as the only element. Split does not strip CR/LF; callers
// pass text already cleaned by Build.
//
// Continuation lines reuse the original command prefix (cmds joined by
// space) with the remainder as their own trailing text, matching §4.3
// step 3: "the remainder becomes the text of a follow-up call with the
// same command prefix". The split point is chosen at the last space at or
// before msgLen bytes into the line, and is never allowed to land inside
// a UTF-8 code point.
func Split(cmds []string, text string, msgLen int) []string {
	head := strings.Join(cmds, " ") + " :"
	line := head + text
	if len(line) <= msgLen {
		return []string{line}
	}

	var lines []string
	remaining := text
	for {
		candidate := head + remaining
		if len(candidate) <= msgLen {
			lines = append(lines, candidate)
			return lines
		}

		// Budget available for `remaining` on this line.
		budget := msgLen - len(head)
		if budget <= 0 {
			// The command prefix alone doesn't fit; nothing more we can
			// do but emit it as-is and stop, rather than loop forever.
			lines = append(lines, candidate)
			return lines
		}

		cut := truncateUTF8(remaining, budget)
		if sp := strings.LastIndexByte(cut, ' '); sp > 0 {
			cut = cut[:sp]
		}
		if cut == "" {
			// No space to split on within budget: hard-cut at the UTF-8
			// safe boundary so we still make forward progress.
			cut = truncateUTF8(remaining, budget)
		}

		lines = append(lines, head+cut)
		remaining = strings.TrimPrefix(remaining[len(cut):], " ")
	}
}

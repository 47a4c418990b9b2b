package state

import (
	"testing"

	"drastik.org/drastikbot/ircmsg"
)

func mustParse(t *testing.T, line string) *ircmsg.Message {
	t.Helper()
	msg, err := ircmsg.Parse(line)
	if err != nil {
		t.Fatalf("Parse(%q): %v", line, err)
	}
	return msg
}

func TestNamesAccumulationAndEndOfNames(t *testing.T) {
	s := New("bot")
	s.HandleNamesReply(mustParse(t, ":server 353 bot = #chan :@op +voice plain"))
	s.HandleEndOfNames(mustParse(t, ":server 366 bot #chan :End of /NAMES list."))

	ch := s.Channel("#chan")
	if ch == nil {
		t.Fatalf("channel not tracked")
	}
	if ch.Phase != Ended {
		t.Fatalf("phase = %v, want Ended", ch.Phase)
	}
	if got := ch.Names["op"].TopPrefix(); got != '@' {
		t.Fatalf("op prefix = %q, want @", got)
	}
	if got := ch.Names["voice"].TopPrefix(); got != '+' {
		t.Fatalf("voice prefix = %q, want +", got)
	}
	if _, ok := ch.Names["plain"]; !ok {
		t.Fatalf("plain member missing")
	}
}

func TestNamesResetsOnNewSyncAfterEnded(t *testing.T) {
	s := New("bot")
	s.HandleNamesReply(mustParse(t, ":server 353 bot = #chan :@op"))
	s.HandleEndOfNames(mustParse(t, ":server 366 bot #chan :end"))

	// A fresh NAMES resync should replace, not merge with, stale state.
	s.HandleNamesReply(mustParse(t, ":server 353 bot = #chan :+voice"))
	ch := s.Channel("#chan")
	if _, ok := ch.Names["op"]; ok {
		t.Fatalf("expected stale member 'op' to be cleared on resync")
	}
	if _, ok := ch.Names["voice"]; !ok {
		t.Fatalf("expected 'voice' present after resync")
	}
}

func TestNamesMergesWhilePending(t *testing.T) {
	s := New("bot")
	s.HandleNamesReply(mustParse(t, ":server 353 bot = #chan :@op"))
	// Phase is Pending (no 366 yet): a second 353 line must merge, not reset.
	s.HandleNamesReply(mustParse(t, ":server 353 bot = #chan :+voice"))

	ch := s.Channel("#chan")
	if _, ok := ch.Names["op"]; !ok {
		t.Fatalf("expected 'op' preserved across merge")
	}
	if _, ok := ch.Names["voice"]; !ok {
		t.Fatalf("expected 'voice' present after merge")
	}
}

func TestJoinSelfTracksChannelAndLearnsHostmask(t *testing.T) {
	s := New("bot")
	s.HandleJoin(mustParse(t, ":bot!user@host.example JOIN #chan"))

	found := false
	for _, c := range s.Channels() {
		if c == "#chan" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected #chan to be joined")
	}
	if s.BotHostmask != "bot!user@host.example" {
		t.Fatalf("hostmask = %q", s.BotHostmask)
	}
	wantLen := 512 - len("bot!user@host.example ")
	if s.MsgLen != wantLen {
		t.Fatalf("MsgLen = %d, want %d", s.MsgLen, wantLen)
	}
}

func TestJoinOtherAddsMember(t *testing.T) {
	s := New("bot")
	s.HandleJoin(mustParse(t, ":bot!u@h JOIN #chan"))
	s.HandleJoin(mustParse(t, ":other!u@h JOIN #chan"))

	ch := s.Channel("#chan")
	if _, ok := ch.Names["other"]; !ok {
		t.Fatalf("expected 'other' added to channel")
	}
}

func TestPartSelfRemovesChannel(t *testing.T) {
	s := New("bot")
	s.HandleJoin(mustParse(t, ":bot!u@h JOIN #chan"))
	s.HandlePart(mustParse(t, ":bot!u@h PART #chan"))

	if s.Channel("#chan") != nil {
		t.Fatalf("expected #chan removed after self-part")
	}
}

func TestPartOtherRemovesMember(t *testing.T) {
	s := New("bot")
	s.HandleJoin(mustParse(t, ":bot!u@h JOIN #chan"))
	s.HandleJoin(mustParse(t, ":other!u@h JOIN #chan"))
	s.HandlePart(mustParse(t, ":other!u@h PART #chan"))

	ch := s.Channel("#chan")
	if _, ok := ch.Names["other"]; ok {
		t.Fatalf("expected 'other' removed after part")
	}
}

func TestQuitRemovesFromAllChannels(t *testing.T) {
	s := New("bot")
	s.HandleJoin(mustParse(t, ":bot!u@h JOIN #a"))
	s.HandleJoin(mustParse(t, ":bot!u@h JOIN #b"))
	s.HandleJoin(mustParse(t, ":other!u@h JOIN #a"))
	s.HandleJoin(mustParse(t, ":other!u@h JOIN #b"))

	s.HandleQuit(mustParse(t, ":other!u@h QUIT :bye"))

	if _, ok := s.Channel("#a").Names["other"]; ok {
		t.Fatalf("expected removal from #a")
	}
	if _, ok := s.Channel("#b").Names["other"]; ok {
		t.Fatalf("expected removal from #b")
	}
}

func TestNickRenamePreservesPrefix(t *testing.T) {
	s := New("bot")
	s.HandleJoin(mustParse(t, ":bot!u@h JOIN #chan"))
	s.HandleNamesReply(mustParse(t, ":server 353 bot = #chan :@old"))
	s.HandleEndOfNames(mustParse(t, ":server 366 bot #chan :end"))

	s.HandleNick(mustParse(t, ":old!u@h NICK new"))

	ch := s.Channel("#chan")
	if _, ok := ch.Names["old"]; ok {
		t.Fatalf("old nick should be gone")
	}
	m, ok := ch.Names["new"]
	if !ok {
		t.Fatalf("new nick missing")
	}
	if m.TopPrefix() != '@' {
		t.Fatalf("prefix not preserved across rename, got %q", m.TopPrefix())
	}
}

func TestNickRenameSelfUpdatesCurrNickname(t *testing.T) {
	s := New("bot")
	s.HandleNick(mustParse(t, ":bot!u@h NICK bot2"))
	if s.CurrNickname != "bot2" {
		t.Fatalf("CurrNickname = %q, want bot2", s.CurrNickname)
	}
}

func TestModePlusInsertsAtRank(t *testing.T) {
	s := New("bot")
	s.HandleJoin(mustParse(t, ":bot!u@h JOIN #chan"))
	s.HandleJoin(mustParse(t, ":nick!u@h JOIN #chan"))

	s.HandleMode(mustParse(t, ":op!u@h MODE #chan +v nick"))
	ch := s.Channel("#chan")
	if ch.Names["nick"].TopPrefix() != '+' {
		t.Fatalf("expected +v applied")
	}

	s.HandleMode(mustParse(t, ":op!u@h MODE #chan +o nick"))
	if ch.Names["nick"].TopPrefix() != '@' {
		t.Fatalf("expected @ to outrank +, got %q", ch.Names["nick"].TopPrefix())
	}
}

func TestModeMinusTriggersResync(t *testing.T) {
	s := New("bot")
	s.HandleJoin(mustParse(t, ":bot!u@h JOIN #chan"))
	resync := s.HandleMode(mustParse(t, ":op!u@h MODE #chan -o nick"))
	if !resync {
		t.Fatalf("expected -mode to request a NAMES resync")
	}
}

func TestModeParameterPairingClasses(t *testing.T) {
	s := New("bot")
	s.Modes = ModeClasses{A: "b", B: "k", C: "l", D: "i"}
	s.HandleJoin(mustParse(t, ":bot!u@h JOIN #chan"))

	// +k needs a param when setting; +l needs one when setting; +i needs none.
	resync := s.HandleMode(mustParse(t, ":op!u@h MODE #chan +kli secret 10"))
	if resync {
		t.Fatalf("did not expect resync for non-prefix modes")
	}
}

func TestRankOrdering(t *testing.T) {
	m := &Member{}
	m.Insert('+')
	m.Insert('~')
	m.Insert('@')
	want := []byte{'~', '@', '+'}
	if len(m.Prefixes) != len(want) {
		t.Fatalf("Prefixes = %q, want %q", m.Prefixes, want)
	}
	for i := range want {
		if m.Prefixes[i] != want[i] {
			t.Fatalf("Prefixes = %q, want %q", m.Prefixes, want)
		}
	}
}

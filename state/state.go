// Package state tracks per-connection channel and membership state:
// joined channels, NAMES accumulation, and prefix bookkeeping driven by
// JOIN/PART/QUIT/NICK/MODE (§3, §4.6). Its membership ranking and MODE
// parameter-pairing logic is adapted from the teacher's ircutil package
// and bridge.go's applyChannelModes, generalized from a multi-upstream
// bouncer's per-connection channel model to this bot's single
// connection.
package state

import (
	"sort"
	"strings"
	"sync"

	"drastik.org/drastikbot/ircmsg"
)

// NamesPhase tracks whether a channel's membership list is mid-sync
// (accumulating 353 replies) or settled.
type NamesPhase int

const (
	Ended NamesPhase = iota
	Pending
)

// rank returns the rank of a prefix symbol, highest first, per §4.6:
// '~'=5, '&'=4, '@'=3, '%'=2, '+'=1, absent=0.
func rank(prefix byte) int {
	switch prefix {
	case '~':
		return 5
	case '&':
		return 4
	case '@':
		return 3
	case '%':
		return 2
	case '+':
		return 1
	default:
		return 0
	}
}

// Member is one channel member: the ordered list of mode prefixes it
// holds, highest rank first.
type Member struct {
	Prefixes []byte
}

// Insert adds prefix to m's prefix list at the position that keeps the
// list ranked highest-first. A duplicate insert is a no-op.
func (m *Member) Insert(prefix byte) {
	for _, p := range m.Prefixes {
		if p == prefix {
			return
		}
	}
	i := sort.Search(len(m.Prefixes), func(i int) bool {
		return rank(m.Prefixes[i]) < rank(prefix)
	})
	m.Prefixes = append(m.Prefixes, 0)
	copy(m.Prefixes[i+1:], m.Prefixes[i:])
	m.Prefixes[i] = prefix
}

// Remove deletes prefix from m's prefix list, if present.
func (m *Member) Remove(prefix byte) {
	for i, p := range m.Prefixes {
		if p == prefix {
			m.Prefixes = append(m.Prefixes[:i], m.Prefixes[i+1:]...)
			return
		}
	}
}

// TopPrefix returns m's highest-ranked prefix, or 0 if it holds none.
func (m *Member) TopPrefix() byte {
	if len(m.Prefixes) == 0 {
		return 0
	}
	return m.Prefixes[0]
}

// Channel is the membership state of one joined (or joining) channel.
type Channel struct {
	Name  string
	Names map[string]*Member
	Phase NamesPhase
}

// ModeClasses groups channel mode letters into RFC 2811's A/B/C/D
// classes, overridable from RPL_ISUPPORT's CHANMODES token.
type ModeClasses struct {
	A, B, C, D string
}

// ClassOf returns which class mode belongs to, and ok=false if unknown
// (and not one of the configured prefix modes, handled separately).
func (c ModeClasses) ClassOf(mode byte) (class byte, ok bool) {
	switch {
	case strings.IndexByte(c.A, mode) >= 0:
		return 'A', true
	case strings.IndexByte(c.B, mode) >= 0:
		return 'B', true
	case strings.IndexByte(c.C, mode) >= 0:
		return 'C', true
	case strings.IndexByte(c.D, mode) >= 0:
		return 'D', true
	default:
		return 0, false
	}
}

// DefaultPrefixes is the standard mode-letter-to-symbol table, used
// until overridden by RPL_ISUPPORT's PREFIX token.
func DefaultPrefixes() map[byte]byte {
	return map[byte]byte{'q': '~', 'a': '&', 'o': '@', 'h': '%', 'v': '+'}
}

// DefaultChanTypes is the standard set of channel-name sigils.
const DefaultChanTypes = "#&+!"

// State is the full channel/membership model for one connection. It is
// connection-scoped: discarded when the session ends (§3 lifecycle).
type State struct {
	mu sync.Mutex

	CurrNickname string
	AltNickname  bool
	BotHostmask  string
	MsgLen       int

	Prefix    map[byte]byte
	ChanTypes string
	Modes     ModeClasses

	channels map[string]*Channel
}

// New returns a freshly initialized State with the documented defaults.
func New(nickname string) *State {
	return &State{
		CurrNickname: nickname,
		MsgLen:       400,
		Prefix:       DefaultPrefixes(),
		ChanTypes:    DefaultChanTypes,
		channels:     make(map[string]*Channel),
	}
}

// prefixSymbols returns the set of characters currently recognized as
// membership prefixes, used to split a NAMES token into (prefix, nick).
func (s *State) prefixSymbols() string {
	var b strings.Builder
	for _, sym := range s.Prefix {
		b.WriteByte(sym)
	}
	return b.String()
}

// Channels returns the sorted names of every tracked channel: any
// channel seen in a JOIN, 353 or 366 and not since removed by the bot's
// own PART, whatever its NAMES phase.
func (s *State) Channels() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.channels))
	for name := range s.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Channel returns the channel state for name, or nil if not tracked.
func (s *State) Channel(name string) *Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channels[name]
}

func (s *State) channel(name string) *Channel {
	ch, ok := s.channels[name]
	if !ok {
		ch = &Channel{Name: name, Names: make(map[string]*Member), Phase: Ended}
		s.channels[name] = ch
	}
	return ch
}

// HandleNamesReply applies one RPL_NAMREPLY (353) line: params are
// {client, symbol, channel, "names..."}, the names space-separated in
// the last parameter.
func (s *State) HandleNamesReply(msg *ircmsg.Message) {
	if len(msg.Params) < 4 {
		return
	}
	channel := msg.Params[2]
	names := strings.Fields(msg.Params[3])

	s.mu.Lock()
	defer s.mu.Unlock()

	ch := s.channel(channel)
	if ch.Phase == Ended {
		ch.Names = make(map[string]*Member)
		ch.Phase = Pending
	}

	symbols := s.prefixSymbols()
	for _, tok := range names {
		prefix := byte(0)
		nick := tok
		if len(tok) > 0 && strings.IndexByte(symbols, tok[0]) >= 0 {
			prefix = tok[0]
			nick = tok[1:]
		}
		m, ok := ch.Names[nick]
		if !ok {
			m = &Member{}
			ch.Names[nick] = m
		}
		if prefix != 0 {
			m.Insert(prefix)
		}
	}
}

// HandleEndOfNames applies RPL_ENDOFNAMES (366): marks the channel's
// membership list settled.
func (s *State) HandleEndOfNames(msg *ircmsg.Message) {
	if len(msg.Params) < 2 {
		return
	}
	channel := msg.Params[1]

	s.mu.Lock()
	defer s.mu.Unlock()
	s.channel(channel).Phase = Ended
}

// HandleJoin applies a JOIN message.
func (s *State) HandleJoin(msg *ircmsg.Message) {
	if msg.Prefix == nil || len(msg.Params) < 1 {
		return
	}
	nick := msg.Prefix.Nickname
	channel := msg.Params[0]

	s.mu.Lock()
	defer s.mu.Unlock()

	ch := s.channel(channel)
	if nick == s.CurrNickname {
		if s.BotHostmask == "" {
			s.BotHostmask = msg.Prefix.String()
			s.MsgLen = 512 - len(s.BotHostmask+" ")
		}
		return
	}
	if _, ok := ch.Names[nick]; !ok {
		ch.Names[nick] = &Member{}
	}
}

// HandlePart applies a PART message.
func (s *State) HandlePart(msg *ircmsg.Message) {
	if msg.Prefix == nil || len(msg.Params) < 1 {
		return
	}
	nick := msg.Prefix.Nickname
	channel := msg.Params[0]

	s.mu.Lock()
	defer s.mu.Unlock()

	if nick == s.CurrNickname {
		delete(s.channels, channel)
		return
	}
	if ch, ok := s.channels[channel]; ok {
		delete(ch.Names, nick)
	}
}

// HandleQuit applies a QUIT message: the nick is removed from every
// channel it was seen in.
func (s *State) HandleQuit(msg *ircmsg.Message) {
	if msg.Prefix == nil {
		return
	}
	nick := msg.Prefix.Nickname

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.channels {
		delete(ch.Names, nick)
	}
}

// HandleNick applies a NICK message: the nick is renamed in every
// channel it was seen in, preserving its prefix list.
func (s *State) HandleNick(msg *ircmsg.Message) {
	if msg.Prefix == nil || len(msg.Params) < 1 {
		return
	}
	oldNick := msg.Prefix.Nickname
	newNick := msg.Params[0]

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ch := range s.channels {
		if m, ok := ch.Names[oldNick]; ok {
			delete(ch.Names, oldNick)
			ch.Names[newNick] = m
		}
	}
	if oldNick == s.CurrNickname {
		s.CurrNickname = newNick
	}
}

// HandleMode applies a channel MODE message: params are
// {channel, modestring, args...}.
func (s *State) HandleMode(msg *ircmsg.Message) (resync bool) {
	if len(msg.Params) < 2 {
		return false
	}
	channel := msg.Params[0]
	modeStr := msg.Params[1]
	args := msg.Params[2:]

	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.channels[channel]
	if !ok {
		return false
	}

	nextArg := 0
	takeArg := func() (string, bool) {
		if nextArg >= len(args) {
			return "", false
		}
		a := args[nextArg]
		nextArg++
		return a, true
	}

	var plusMinus byte
	for i := 0; i < len(modeStr); i++ {
		c := modeStr[i]
		if c == '+' || c == '-' {
			plusMinus = c
			continue
		}
		if plusMinus == 0 {
			continue
		}

		if prefixSym, isPrefix := s.Prefix[c]; isPrefix {
			nick, ok := takeArg()
			if !ok {
				continue
			}
			if plusMinus == '+' {
				if m, ok := ch.Names[nick]; ok {
					m.Insert(prefixSym)
				}
			} else {
				resync = true
			}
			continue
		}

		class, known := s.Modes.ClassOf(c)
		if !known {
			continue
		}
		switch class {
		case 'A', 'B':
			takeArg()
		case 'C':
			if plusMinus == '+' {
				takeArg()
			}
		case 'D':
			// no argument
		}
	}
	return resync
}

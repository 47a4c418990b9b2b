package dispatch

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"drastik.org/drastikbot/config"
	"drastik.org/drastikbot/ircconn"
	"drastik.org/drastikbot/ircmsg"
	"drastik.org/drastikbot/state"
)

func newTestStore(t *testing.T) *config.Store {
	t.Helper()
	// A path that does not yet exist loads defaults without running
	// Validate, which is what a first-run bot directory looks like.
	path := filepath.Join(t.TempDir(), "config.json")
	s, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return s
}

type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) record(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, s)
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func newDispatcher(t *testing.T, cfg *config.Store) *Dispatcher {
	t.Helper()
	pool := NewPool(2)
	t.Cleanup(func() { pool.Close(DefaultCloseGracePeriod) })
	vars := NewMemory()
	return New(pool, cfg, vars, nil, func(msg *ircmsg.Message, channel, nick, user, host string) *Context {
		return &Context{Msg: msg, Vars: vars, Config: cfg, Channel: channel, Nick: nick, User: user, Host: host}
	})
}

func testClient() *Client {
	return NewClient(ircconn.NewWriter(discard{}), state.New("bot"))
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}

func TestDispatchIRCCommandFansOutOnPool(t *testing.T) {
	cfg := newTestStore(t)
	d := newDispatcher(t, cfg)
	rec := &recorder{}

	d.Register(&Module{
		Name:        "logger",
		IRCCommands: []string{"JOIN"},
		Handle: func(ctx *Context, cli *Client) error {
			rec.record("join-seen")
			return nil
		},
	})

	msg, _ := ircmsg.Parse(":nick!u@h JOIN #chan")
	d.Dispatch(testClient(), msg, "#chan", "nick", "u", "h")

	waitFor(t, func() bool { return len(rec.snapshot()) == 1 })
}

func TestDispatchBotCommandMatchesPrefix(t *testing.T) {
	cfg := newTestStore(t)
	d := newDispatcher(t, cfg)
	rec := &recorder{}

	d.Register(&Module{
		Name:        "ping",
		BotCommands: []string{"ping"},
		Handle: func(ctx *Context, cli *Client) error {
			rec.record("ping-invoked")
			return nil
		},
	})

	msg, _ := ircmsg.Parse(":nick!u@h PRIVMSG #chan :.ping")
	d.Dispatch(testClient(), msg, "#chan", "nick", "u", "h")

	if got := rec.snapshot(); len(got) != 1 {
		t.Fatalf("calls = %v, want 1 invocation", got)
	}
}

func TestDispatchBotCommandIgnoresWrongPrefix(t *testing.T) {
	cfg := newTestStore(t)
	d := newDispatcher(t, cfg)
	rec := &recorder{}

	d.Register(&Module{
		Name:        "ping",
		BotCommands: []string{"ping"},
		Handle: func(ctx *Context, cli *Client) error {
			rec.record("ping-invoked")
			return nil
		},
	})

	msg, _ := ircmsg.Parse(":nick!u@h PRIVMSG #chan :ping")
	d.Dispatch(testClient(), msg, "#chan", "nick", "u", "h")

	if got := rec.snapshot(); len(got) != 0 {
		t.Fatalf("calls = %v, want 0 (missing prefix)", got)
	}
}

func TestDispatchBlacklistBlocksChannel(t *testing.T) {
	cfg := newTestStore(t)
	if err := cfg.SetModuleBlacklist("ping", []string{"#chan"}); err != nil {
		t.Fatalf("SetModuleBlacklist: %v", err)
	}
	d := newDispatcher(t, cfg)
	rec := &recorder{}

	d.Register(&Module{
		Name:        "ping",
		BotCommands: []string{"ping"},
		Handle: func(ctx *Context, cli *Client) error {
			rec.record("ping-invoked")
			return nil
		},
	})

	msg, _ := ircmsg.Parse(":nick!u@h PRIVMSG #chan :.ping")
	d.Dispatch(testClient(), msg, "#chan", "nick", "u", "h")

	if got := rec.snapshot(); len(got) != 0 {
		t.Fatalf("calls = %v, want 0 (blacklisted channel)", got)
	}
}

func TestDispatchWhitelistAllowsOnlyListedChannel(t *testing.T) {
	cfg := newTestStore(t)
	if err := cfg.SetModuleWhitelist("ping", []string{"#allowed"}); err != nil {
		t.Fatalf("SetModuleWhitelist: %v", err)
	}
	d := newDispatcher(t, cfg)
	rec := &recorder{}

	d.Register(&Module{
		Name:        "ping",
		BotCommands: []string{"ping"},
		Handle: func(ctx *Context, cli *Client) error {
			rec.record(ctx.Channel)
			return nil
		},
	})

	msgOther, _ := ircmsg.Parse(":nick!u@h PRIVMSG #other :.ping")
	d.Dispatch(testClient(), msgOther, "#other", "nick", "u", "h")
	if got := rec.snapshot(); len(got) != 0 {
		t.Fatalf("calls = %v, want 0 for non-whitelisted channel", got)
	}

	msgAllowed, _ := ircmsg.Parse(":nick!u@h PRIVMSG #allowed :.ping")
	d.Dispatch(testClient(), msgAllowed, "#allowed", "nick", "u", "h")
	if got := rec.snapshot(); len(got) != 1 {
		t.Fatalf("calls = %v, want 1 for whitelisted channel", got)
	}
}

func TestDispatchUACLBlocksBannedUser(t *testing.T) {
	cfg := newTestStore(t)
	if err := cfg.AppendUserACL("* spammer!*@* 0 ping"); err != nil {
		t.Fatalf("AppendUserACL: %v", err)
	}
	d := newDispatcher(t, cfg)
	rec := &recorder{}

	d.Register(&Module{
		Name:        "ping",
		BotCommands: []string{"ping"},
		Handle: func(ctx *Context, cli *Client) error {
			rec.record("invoked")
			return nil
		},
	})

	msg, _ := ircmsg.Parse(":spammer!u@h PRIVMSG #chan :.ping")
	d.Dispatch(testClient(), msg, "#chan", "spammer", "u", "h")

	if got := rec.snapshot(); len(got) != 0 {
		t.Fatalf("calls = %v, want 0 (banned by UACL)", got)
	}
}

func TestDispatchModulePanicIsContained(t *testing.T) {
	cfg := newTestStore(t)
	d := newDispatcher(t, cfg)

	d.Register(&Module{
		Name:        "boom",
		IRCCommands: []string{"PRIVMSG"},
		Handle: func(ctx *Context, cli *Client) error {
			panic("module exploded")
		},
	})

	msg, _ := ircmsg.Parse(":nick!u@h PRIVMSG #chan :hi")
	// Must not panic the test.
	d.Dispatch(testClient(), msg, "#chan", "nick", "u", "h")
	time.Sleep(20 * time.Millisecond)
}

func TestStartupInvokesStartupModules(t *testing.T) {
	cfg := newTestStore(t)
	d := newDispatcher(t, cfg)
	rec := &recorder{}

	d.Register(&Module{
		Name:    "register",
		Startup: true,
		Handle: func(ctx *Context, cli *Client) error {
			rec.record("startup")
			return nil
		},
	})

	d.Startup(testClient())
	if got := rec.snapshot(); len(got) != 1 {
		t.Fatalf("calls = %v, want 1 startup invocation", got)
	}
}

func TestReloadReplacesModuleInPlace(t *testing.T) {
	cfg := newTestStore(t)
	d := newDispatcher(t, cfg)
	rec := &recorder{}

	d.Register(&Module{
		Name:        "ping",
		BotCommands: []string{"ping"},
		Handle: func(ctx *Context, cli *Client) error {
			rec.record("v1")
			return nil
		},
	})
	d.Reload(&Module{
		Name:        "ping",
		BotCommands: []string{"ping"},
		Handle: func(ctx *Context, cli *Client) error {
			rec.record("v2")
			return nil
		},
	})

	msg, _ := ircmsg.Parse(":nick!u@h PRIVMSG #chan :.ping")
	d.Dispatch(testClient(), msg, "#chan", "nick", "u", "h")

	if got := rec.snapshot(); len(got) != 1 || got[0] != "v2" {
		t.Fatalf("calls = %v, want exactly [v2]", got)
	}
}

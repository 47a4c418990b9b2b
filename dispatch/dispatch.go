package dispatch

import (
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"drastik.org/drastikbot/config"
	"drastik.org/drastikbot/ircmsg"
	"drastik.org/drastikbot/uacl"
)

// Logger is the minimal logging surface dispatch needs, satisfied by
// the ambient stdlib-backed logger every package uses.
type Logger interface {
	Printf(format string, args ...interface{})
}

// Dispatcher owns the module registry, the two command indices, and the
// worker pool that irc_command handlers run on.
type Dispatcher struct {
	mu               sync.RWMutex
	modules          map[string]*Module
	botCommandIndex  map[string][]*Module
	ircCommandIndex  map[string][]*Module

	pool   *Pool
	cfg    *config.Store
	vars   Vars
	logger Logger

	newContext func(msg *ircmsg.Message, channel, nick, user, host string) *Context
}

// New builds a Dispatcher. newContext builds the per-invocation
// Context (wiring in the shared KV stores), kept as a callback so
// Dispatcher itself does not need to import the store package.
func New(pool *Pool, cfg *config.Store, vars Vars, logger Logger, newContext func(*ircmsg.Message, string, string, string, string) *Context) *Dispatcher {
	return &Dispatcher{
		modules:         make(map[string]*Module),
		botCommandIndex: make(map[string][]*Module),
		ircCommandIndex: make(map[string][]*Module),
		pool:            pool,
		cfg:             cfg,
		vars:            vars,
		logger:          logger,
		newContext:      newContext,
	}
}

// Register adds m to the registry and both command indices. Loading a
// module with a name already registered replaces it in place (the
// mechanism "reload" builds on).
func (d *Dispatcher) Register(m *Module) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.removeLocked(m.Name)
	d.modules[m.Name] = m
	for _, word := range m.BotCommands {
		d.botCommandIndex[word] = append(d.botCommandIndex[word], m)
	}
	for _, cmd := range m.IRCCommands {
		d.ircCommandIndex[cmd] = append(d.ircCommandIndex[cmd], m)
	}
}

func (d *Dispatcher) removeLocked(name string) {
	if _, ok := d.modules[name]; !ok {
		return
	}
	delete(d.modules, name)
	for word, mods := range d.botCommandIndex {
		d.botCommandIndex[word] = removeByName(mods, name)
	}
	for cmd, mods := range d.ircCommandIndex {
		d.ircCommandIndex[cmd] = removeByName(mods, name)
	}
}

func removeByName(mods []*Module, name string) []*Module {
	out := mods[:0]
	for _, m := range mods {
		if m.Name != name {
			out = append(out, m)
		}
	}
	return out
}

// Reload re-registers m in place, preserving the rest of the registry.
// Reimport is the caller's responsibility (rescanning module paths and
// calling Register for each newly found module); Dispatcher only owns
// the indices, not the filesystem search.
func (d *Dispatcher) Reload(m *Module) {
	d.Register(m)
}

// Unregister removes a module entirely.
func (d *Dispatcher) Unregister(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.removeLocked(name)
}

// Startup invokes every module that declared startup=true with the
// synthetic __STARTUP event, on the caller goroutine (there is nothing
// to fan out yet: no connection state exists before this point).
func (d *Dispatcher) Startup(cli *Client) {
	d.mu.RLock()
	var startupModules []*Module
	for _, m := range d.modules {
		if m.Startup {
			startupModules = append(startupModules, m)
		}
	}
	d.mu.RUnlock()

	for _, m := range startupModules {
		d.invoke(m, d.newContext(nil, "", "", "", ""), cli)
	}
}

// Dispatch fans msg out to interested irc_command modules on the worker
// pool, and, for PRIVMSG whose text begins with the channel's effective
// prefix, synchronously dispatches the matching bot_command module on
// the calling goroutine (§4.7 step 2). Bot-command handlers are not
// submitted to the worker pool: Dispatch returns only after each of
// them has returned.
func (d *Dispatcher) Dispatch(cli *Client, msg *ircmsg.Message, channel, nick, user, host string) {
	d.mu.RLock()
	ircMods := append([]*Module(nil), d.ircCommandIndex[msg.Command]...)
	d.mu.RUnlock()

	for _, m := range ircMods {
		m := m
		d.pool.Submit(func() {
			d.invokeGated(m, channel, nick, user, host, msg, cli)
		})
	}

	if msg.Command != "PRIVMSG" || len(msg.Params) < 2 {
		return
	}
	text := msg.Params[1]
	word, ok := firstWord(text)
	if !ok {
		return
	}

	prefix := d.cfg.Snapshot().EffectivePrefix(channel)
	if !strings.HasPrefix(word, prefix) || word == prefix {
		return
	}
	command := strings.TrimPrefix(word, prefix)

	d.mu.RLock()
	botMods := append([]*Module(nil), d.botCommandIndex[command]...)
	d.mu.RUnlock()

	for _, m := range botMods {
		d.invokeGated(m, channel, nick, user, host, msg, cli)
	}
}

func firstWord(text string) (string, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", false
	}
	return fields[0], true
}

// invokeGated applies the channel access and UACL gates from §4.7 step
// 3, then invokes m if both pass.
func (d *Dispatcher) invokeGated(m *Module, channel, nick, user, host string, msg *ircmsg.Message, cli *Client) {
	doc := d.cfg.Snapshot()
	if !checkChannelModuleAccess(m.Name, channel, doc.IRC.Modules.Blacklist, doc.IRC.Modules.Whitelist) {
		return
	}
	if isBannedUserAccessList(doc.IRC.UserACL, channel, nick, user, host, m.Name) {
		return
	}
	d.invoke(m, d.newContext(msg, channel, nick, user, host), cli)
}

// checkChannelModuleAccess implements §4.7's blacklist/whitelist gate.
func checkChannelModuleAccess(module, channel string, blacklist, whitelist map[string][]string) bool {
	if contains(blacklist[module], channel) {
		return false
	}
	if len(whitelist[module]) > 0 && !contains(whitelist[module], channel) {
		return false
	}
	return true
}

func contains(ss []string, v string) bool {
	for _, s := range ss {
		if s == v {
			return true
		}
	}
	return false
}

// isBannedUserAccessList implements §4.7's UACL gate: no entry may ban
// (channel, nick, user, host) from module.
func isBannedUserAccessList(entries []string, channel, nick, user, host, module string) bool {
	var list uacl.List
	for _, raw := range entries {
		e, err := uacl.Parse(raw)
		if err != nil {
			continue
		}
		list = append(list, e)
	}
	return list.IsBanned(channel, nick, user, host, module, time.Now())
}

// invoke wraps one module call in the error boundary from §4.7 step 4:
// any panic or returned error is logged with the module name and
// (for panics) a stack trace, and never escapes to the caller.
func (d *Dispatcher) invoke(m *Module, ctx *Context, cli *Client) {
	defer func() {
		if r := recover(); r != nil {
			d.logf("dispatch: module %q panicked: %v\n%s", m.Name, r, debug.Stack())
		}
	}()
	if err := m.Handle(ctx, cli); err != nil {
		d.logf("dispatch: module %q: %v", m.Name, err)
	}
}

func (d *Dispatcher) logf(format string, args ...interface{}) {
	if d.logger == nil {
		return
	}
	d.logger.Printf(format, args...)
}

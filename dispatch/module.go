// Package dispatch implements the module registry and fan-out described
// in §4.7: two command indices, a bounded worker pool for irc_command
// handlers, synchronous bot_command delivery, and the blacklist/
// whitelist + UACL gating applied before every PRIVMSG-triggered
// invocation. It is grounded on the teacher's command-table dispatch in
// service.go (serviceCommandSet/handleServicePRIVMSG), generalized from
// a single built-in admin service to an open module registry, and on
// the blacklist/whitelist/UACL gating in
// original_source/src/irc/modules.py's mod_main/mod_main_.
package dispatch

import (
	"drastik.org/drastikbot/config"
	"drastik.org/drastikbot/ircconn"
	"drastik.org/drastikbot/ircmsg"
	"drastik.org/drastikbot/state"
)

// KV is the shape a key-value store (in-memory or on-disk) must expose
// to modules. Both stores handed to a module satisfy it.
type KV interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
}

// Vars is the per-module-namespaced variable memory accessor (§4.7).
type Vars interface {
	Get(module, name string, raw bool) (string, bool)
	GetOr(module, name, def string, raw bool) string
	Set(module, name, value string, raw bool)
}

// Context is the callback context passed to every module invocation: the
// parsed message plus the shared stores, variable accessor, and
// configuration.
type Context struct {
	Msg     *ircmsg.Message
	Memory  KV
	Disk    KV
	Vars    Vars
	Config  *config.Store
	Channel string
	Nick    string
	User    string
	Host    string
}

// Client is the client handle passed to every module invocation: the
// wire writer's command surface plus a read-only channel/membership
// snapshot.
type Client struct {
	writer *ircconn.Writer
	State  *state.State
}

// NewClient wraps w/st as a module-facing Client handle.
func NewClient(w *ircconn.Writer, st *state.State) *Client {
	return &Client{writer: w, State: st}
}

func (c *Client) Privmsg(target, text string) error {
	return c.writer.Send([]string{"PRIVMSG", target}, text, true)
}

func (c *Client) Notice(target, text string) error {
	return c.writer.Send([]string{"NOTICE", target}, text, true)
}

func (c *Client) Join(channel, key string) error {
	if key != "" {
		return c.writer.Send([]string{"JOIN", channel, key}, "", false)
	}
	return c.writer.Send([]string{"JOIN", channel}, "", false)
}

func (c *Client) Part(channel, reason string) error {
	if reason != "" {
		return c.writer.Send([]string{"PART", channel}, reason, true)
	}
	return c.writer.Send([]string{"PART", channel}, "", false)
}

func (c *Client) Nick(nick string) error {
	return c.writer.Send([]string{"NICK", nick}, "", false)
}

func (c *Client) Quit(reason string) error {
	return c.writer.Send([]string{"QUIT"}, reason, true)
}

func (c *Client) Away(reason string) error {
	if reason == "" {
		return c.writer.Send([]string{"AWAY"}, "", false)
	}
	return c.writer.Send([]string{"AWAY"}, reason, true)
}

func (c *Client) Invite(nick, channel string) error {
	return c.writer.Send([]string{"INVITE", nick, channel}, "", false)
}

func (c *Client) Kick(channel, nick, reason string) error {
	if reason != "" {
		return c.writer.Send([]string{"KICK", channel, nick}, reason, true)
	}
	return c.writer.Send([]string{"KICK", channel, nick}, "", false)
}

func (c *Client) Names(channel string) error {
	return c.writer.Send([]string{"NAMES", channel}, "", false)
}

func (c *Client) Pong(token string) error {
	return c.writer.Send([]string{"PONG"}, token, true)
}

// Module is the interface every loadable module implements.
type Module struct {
	Name        string
	BotCommands []string
	IRCCommands []string
	Startup     bool
	Admin       bool
	Handle      func(ctx *Context, cli *Client) error
}

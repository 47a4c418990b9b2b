// Command drastikbot is the process entry point: it loads the
// configuration, dials the network, drives registration, then runs the
// read task described in §5 until SIGINT or a fatal transport error.
// Flag parsing follows the teacher's cmd/sojuctl/main.go style (stdlib
// flag, no CLI framework); the surrounding CLI itself is out of scope
// per spec §6, but the flags and exit codes it names are honored here.
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"os/user"
	"path/filepath"
	"syscall"
	"time"

	"drastik.org/drastikbot/config"
	"drastik.org/drastikbot/dispatch"
	"drastik.org/drastikbot/dlog"
	"drastik.org/drastikbot/ircconn"
	"drastik.org/drastikbot/ircmsg"
	"drastik.org/drastikbot/register"
	"drastik.org/drastikbot/state"
	"drastik.org/drastikbot/store"
	"drastik.org/drastikbot/uacl"
)

func defaultConfDir() string {
	if u, err := user.Current(); err == nil && u.HomeDir != "" {
		return filepath.Join(u.HomeDir, ".drastikbot")
	}
	return ".drastikbot"
}

func main() {
	confDir := flag.String("c", defaultConfDir(), "base directory for config, logs, and the on-disk store")
	flag.StringVar(confDir, "confdir", *confDir, "alias of -c")
	dev := flag.Bool("d", false, "force log_level=debug and reload-on-dispatch of modules")
	flag.BoolVar(dev, "dev", false, "alias of -d")
	poolSize := flag.Int("workers", 4, "worker pool size for irc_command dispatch")
	flag.Parse()

	if err := os.MkdirAll(*confDir, 0o755); err != nil {
		log.Fatalf("drastikbot: cannot create confdir %s: %v", *confDir, err)
	}

	cfg, err := config.Load(filepath.Join(*confDir, "config.json"))
	if err != nil {
		log.Fatalf("drastikbot: %v", err)
	}

	doc := cfg.Snapshot()
	level := dlog.ParseLevel(doc.Sys.LogLevel)
	if *dev {
		level = dlog.Debug
	}
	logDir := doc.Sys.LogDir
	if logDir == "" {
		logDir = filepath.Join(*confDir, "logs")
	}
	root, err := dlog.New(level, logDir)
	if err != nil {
		log.Fatalf("drastikbot: cannot open log directory %s: %v", logDir, err)
	}
	defer root.Close()

	b := &bot{
		confDir:  *confDir,
		dev:      *dev,
		poolSize: *poolSize,
		cfg:      cfg,
		root:     root,
	}
	os.Exit(b.run())
}

// bot wires together every package into the running process. Its
// fields are set once at startup; run owns the reconnect loop.
type bot struct {
	confDir  string
	dev      bool
	poolSize int
	cfg      *config.Store
	root     *dlog.Root

	disk *store.Disk
	mem  *store.Memory
	vars *dispatch.Memory
}

// run opens the shared stores once, then reconnects in a loop until a
// clean shutdown or a fatal startup error, returning the process exit
// code (§6): 0 clean, 1 fatal startup error, nonzero on force-quit.
func (b *bot) run() int {
	connLog := b.root.For("connection")

	disk, err := store.Open("sqlite3", filepath.Join(b.confDir, "drastikbot.db"))
	if err != nil {
		connLog.Printf("fatal: opening on-disk store: %v", err)
		return 1
	}
	defer disk.Close()
	b.disk = disk
	b.mem = store.NewMemory()
	b.vars = dispatch.NewMemory()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT)

	backoff := &ircconn.Backoff{}
	forceQuit := false

	for {
		if purged := b.purgeExpiredUACL(); purged {
			connLog.Printf("purged expired user_acl entries")
		}

		quit, fatal, fq := b.runOneConnection(sigCh, backoff)
		forceQuit = forceQuit || fq
		if fatal != nil {
			connLog.Printf("fatal: %v", fatal)
			return 1
		}
		if quit {
			if forceQuit {
				return 2
			}
			return 0
		}

		select {
		case <-sigCh:
			return 0
		case <-time.After(backoff.Next()):
		}
	}
}

// purgeExpiredUACL drops expired user_acl entries at startup, per §4.2.
func (b *bot) purgeExpiredUACL() bool {
	doc := b.cfg.Snapshot()
	var list uacl.List
	for _, raw := range doc.IRC.UserACL {
		entry, err := uacl.Parse(raw)
		if err != nil {
			continue
		}
		list = append(list, entry)
	}
	survivors := list.PurgeExpired(time.Now())
	if len(survivors) == len(list) {
		return false
	}
	strs := make([]string, len(survivors))
	for i, e := range survivors {
		strs[i] = e.String()
	}
	if err := b.cfg.SetUserACL(strs); err != nil {
		b.root.For("connection").Printf("failed to persist purged user_acl: %v", err)
	}
	return true
}

// runOneConnection dials, registers, and runs the read loop for one
// connection lifetime. quit is true once the bot should stop trying to
// reconnect (clean SIGINT shutdown); fatal is non-nil on an
// unrecoverable startup error; forceQuit is true on a second SIGINT.
func (b *bot) runOneConnection(sigCh chan os.Signal, backoff *ircconn.Backoff) (quit bool, fatal error, forceQuit bool) {
	connLog := b.root.For("connection")
	regLog := b.root.For("registration")
	dispatchLog := b.root.For("dispatch")

	doc := b.cfg.Snapshot()

	conn, err := ircconn.Dial(ircconn.Options{
		Network:     doc.IRC.Connection.Network,
		Port:        doc.IRC.Connection.Port,
		SSL:         doc.IRC.Connection.SSL,
		NetPassword: doc.IRC.Connection.NetPassword,
	})
	if err != nil {
		connLog.Printf("dial %s:%d failed: %v", doc.IRC.Connection.Network, doc.IRC.Connection.Port, err)
		return false, nil, false
	}
	defer conn.Close()
	connLog.Printf("connected to %s:%d", doc.IRC.Connection.Network, doc.IRC.Connection.Port)

	st := state.New(doc.IRC.Connection.Nickname)
	writer := conn.Writer()
	cli := dispatch.NewClient(writer, st)

	machine := register.New(writer, st, doc.IRC.Connection, doc.IRC.Channels, regLog.Printf)

	pool := dispatch.NewPool(b.poolSize)
	defer pool.Close(dispatch.DefaultCloseGracePeriod)

	disp := dispatch.New(pool, b.cfg, b.vars, dispatchLog, func(msg *ircmsg.Message, channel, nick, user, host string) *dispatch.Context {
		return &dispatch.Context{
			Msg:     msg,
			Memory:  b.mem,
			Disk:    b.disk,
			Vars:    b.vars,
			Config:  b.cfg,
			Channel: channel,
			Nick:    nick,
			User:    user,
			Host:    host,
		}
	})
	disp.Register(register.AsModule(machine))
	disp.Startup(cli)

	msgCh := make(chan *ircmsg.Message)
	errCh := make(chan error, 1)
	go func() {
		for {
			msg, err := conn.ReadMessage()
			if err != nil {
				if _, ok := err.(*ircmsg.ParseError); ok {
					connLog.Debugf("dropping malformed line: %v", err)
					continue
				}
				errCh <- err
				return
			}
			msgCh <- msg
		}
	}()

	statusTicker := time.NewTicker(time.Second)
	defer statusTicker.Stop()

	sigCount := 0
	backoffReset := false
	for {
		select {
		case <-sigCh:
			sigCount++
			if sigCount == 1 {
				writer.Send([]string{"QUIT"}, doc.IRC.Connection.QuitMsg, true)
				return true, nil, false
			}
			return true, nil, true

		case <-statusTicker.C:
			switch machine.CurrentStage() {
			case register.AwaitingGhost:
				if err := machine.CheckGhostTimeout(time.Now()); err != nil {
					regLog.Printf("ghost timeout handling error: %v", err)
				}
			case register.Connected:
				// A fresh session; only reset once the registration
				// handshake has actually completed, not merely on a
				// successful dial (§3: reconnect_delay is per live
				// session, discarded once the session ends).
				if !backoffReset {
					backoff.Reset()
					backoffReset = true
				}
			}

		case err := <-errCh:
			connLog.Printf("connection lost: %v", err)
			return false, nil, false

		case msg := <-msgCh:
			b.handleMessage(msg, st, disp, cli, writer)
		}
	}
}

// handleMessage applies the channel/membership state mutations for the
// commands §5 names, on the read task before fan-out, then dispatches
// the message to every interested module (registration included, per
// §4.5: it is itself a registered dispatch.Module). PING is answered
// here with PONG and is not dispatched to any module.
func (b *bot) handleMessage(msg *ircmsg.Message, st *state.State, disp *dispatch.Dispatcher, cli *dispatch.Client, writer *ircconn.Writer) {
	switch msg.Command {
	case "JOIN":
		st.HandleJoin(msg)
	case "PART":
		st.HandlePart(msg)
	case "QUIT":
		st.HandleQuit(msg)
	case "NICK":
		st.HandleNick(msg)
	case "MODE":
		st.HandleMode(msg)
	case "353":
		st.HandleNamesReply(msg)
	case "366":
		st.HandleEndOfNames(msg)
	case "PING":
		writer.Send([]string{"PONG"}, msg.Trailing(), true)
		return
	}

	channel, nick, user, host := messageOrigin(msg)
	disp.Dispatch(cli, msg, channel, nick, user, host)
}

// messageOrigin extracts the channel/nick/user/host tuple dispatch
// needs from a message's prefix and first parameter, when present.
func messageOrigin(msg *ircmsg.Message) (channel, nick, user, host string) {
	if msg.Prefix != nil {
		nick, user, host = msg.Prefix.Nickname, msg.Prefix.User, msg.Prefix.Host
	}
	if len(msg.Params) > 0 {
		channel = msg.Params[0]
	}
	return channel, nick, user, host
}

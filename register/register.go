// Package register implements the registration state machine (§4.5):
// CAP negotiation, optional SASL PLAIN authentication, nickname
// collision fallback, and the post-MOTD NickServ handshake. It is
// itself structured as a module reacting to a synthetic __STARTUP event
// plus a handful of IRC commands, per §4.5's framing, grounded on the
// Register/nickserv_ghost/cap_ls/cap_ack flow in
// original_source/src/irc/worker.py and on the teacher's SASL PLAIN
// wiring in delthas-soju/upstream.go's handleCapAck.
package register

import (
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-sasl"

	"drastik.org/drastikbot/config"
	"drastik.org/drastikbot/dispatch"
	"drastik.org/drastikbot/ircconn"
	"drastik.org/drastikbot/ircmsg"
	"drastik.org/drastikbot/state"
)

// Stage is a state in the registration machine.
type Stage int

const (
	Init Stage = iota
	WaitingCAP
	WaitingCAPAck
	SASL
	Connecting
	AwaitingGhost
	Connected
)

// SupportedCaps is the set of IRCv3 capabilities this bot can use, per
// §4.5/§6.
var SupportedCaps = map[string]bool{"sasl": true}

// GhostWaitTimeout bounds how long the machine waits for NickServ's
// "has been ghosted" NOTICE before proceeding anyway (§9 supplement;
// the original blocks on this NOTICE with no timeout at all, which this
// bot treats as a bug worth fixing rather than carrying over).
const GhostWaitTimeout = 10 * time.Second

// SASLState mirrors the connection-state field of the same name in §3.
type SASLState int

const (
	NotTried SASLState = iota
	InProgress
	Success
	Fail
)

// Machine drives one connection's registration sequence. Its exported
// methods lock internally: dispatched as a module (§4.7), its handler
// may be invoked by any pool worker, and the state transitions above
// depend on being applied one at a time and in arrival order.
type Machine struct {
	writer *ircconn.Writer
	state  *state.State
	conn   config.Connection
	chans  map[string]string

	mu        sync.Mutex
	Stage     Stage
	SASLState SASLState

	ghostDeadline time.Time

	logf func(format string, args ...interface{})
}

// New builds a registration Machine bound to the given wire writer,
// connection state, connection config, and channels to auto-join.
func New(w *ircconn.Writer, st *state.State, conn config.Connection, chans map[string]string, logf func(string, ...interface{})) *Machine {
	if logf == nil {
		logf = func(string, ...interface{}) {}
	}
	return &Machine{writer: w, state: st, conn: conn, chans: chans, logf: logf}
}

// Start handles the synthetic __STARTUP event: CAP LS, USER, NICK.
func (m *Machine) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Stage != Init {
		return nil
	}
	if err := m.writer.Send([]string{"CAP", "LS", "302"}, "", false); err != nil {
		return err
	}
	if err := m.writer.Send([]string{"USER", m.conn.Username, "0", "*"}, m.conn.Realname, true); err != nil {
		return err
	}
	m.state.CurrNickname = m.conn.Nickname
	if err := m.writer.Send([]string{"NICK", m.conn.Nickname}, "", false); err != nil {
		return err
	}
	m.Stage = WaitingCAP
	return nil
}

// ircCommands are the IRC commands registration declares interest in
// through the dispatcher's irc_command_d index, per §4.5: CAP,
// AUTHENTICATE, 903, 904, 433, 376, plus NOTICE for the NickServ
// ghost-confirmation supplement (§9).
var ircCommands = []string{"CAP", "AUTHENTICATE", "903", "904", "433", "376", "NOTICE"}

// AsModule wraps m as a dispatch.Module, so registration is driven
// through the module registry exactly like any other module (§4.5):
// invoked once at startup with the synthetic __STARTUP event, then on
// every inbound message matching ircCommands. m.HandleMessage and
// m.Start already no-op when called out of turn for the current Stage,
// so invoking this on a worker-pool goroutine is safe.
func AsModule(m *Machine) *dispatch.Module {
	return &dispatch.Module{
		Name:        "registration",
		IRCCommands: ircCommands,
		Startup:     true,
		Handle: func(ctx *dispatch.Context, cli *dispatch.Client) error {
			if ctx.Msg == nil {
				return m.Start()
			}
			_, err := m.HandleMessage(ctx.Msg)
			return err
		},
	}
}

// CurrentStage returns the machine's current stage. It exists so
// callers outside the dispatcher (the read task's ghost-timeout
// ticker) can observe Stage without racing the module's own goroutine.
func (m *Machine) CurrentStage() Stage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Stage
}

// HandleMessage advances the state machine in response to one inbound
// message. done is true once registration has reached Connected.
func (m *Machine) HandleMessage(msg *ircmsg.Message) (done bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch msg.Command {
	case "CAP":
		err = m.handleCAP(msg)
	case "AUTHENTICATE":
		err = m.handleAuthenticate(msg)
	case "903":
		err = m.handleSASLResult(Success)
	case "904":
		err = m.handleSASLResult(Fail)
	case "433":
		err = m.handleNickInUse(msg)
	case "376":
		err = m.handleEndOfMOTD()
	case "NOTICE":
		err = m.handleNotice(msg)
	}
	return m.Stage == Connected, err
}

// CheckGhostTimeout should be polled by the caller while Stage ==
// AwaitingGhost; once the deadline passes without a ghost confirmation,
// it proceeds exactly as if the NOTICE had arrived.
func (m *Machine) CheckGhostTimeout(now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Stage != AwaitingGhost || now.Before(m.ghostDeadline) {
		return nil
	}
	m.logf("registration: timed out waiting for NickServ ghost confirmation")
	return m.finishGhost()
}

func (m *Machine) handleCAP(msg *ircmsg.Message) error {
	if len(msg.Params) < 3 {
		return nil
	}
	sub := strings.ToUpper(msg.Params[1])
	switch sub {
	case "LS":
		if m.Stage != WaitingCAP {
			return nil
		}
		offered := strings.Fields(msg.Trailing())
		var want []string
		for _, cap := range offered {
			if SupportedCaps[cap] {
				want = append(want, cap)
			}
		}
		if len(want) == 0 {
			m.Stage = Connecting
			return m.writer.Send([]string{"CAP", "END"}, "", false)
		}
		m.Stage = WaitingCAPAck
		return m.writer.Send([]string{"CAP", "REQ"}, strings.Join(want, " "), true)
	case "ACK":
		if m.Stage != WaitingCAPAck {
			return nil
		}
		acked := strings.Fields(msg.Trailing())
		wantsSASL := m.conn.Authentication == "sasl"
		for _, cap := range acked {
			if cap == "sasl" && wantsSASL {
				m.Stage = SASL
				m.SASLState = InProgress
				return m.writer.Send([]string{"AUTHENTICATE", "PLAIN"}, "", false)
			}
		}
		m.Stage = Connecting
		return m.writer.Send([]string{"CAP", "END"}, "", false)
	}
	return nil
}

func (m *Machine) handleAuthenticate(msg *ircmsg.Message) error {
	if m.Stage != SASL || msg.Trailing() != "+" {
		return nil
	}
	client := sasl.NewPlainClient("", m.conn.Username, m.conn.AuthPassword)
	_, resp, err := client.Start()
	if err != nil {
		return fmt.Errorf("register: sasl plain start: %w", err)
	}
	return m.writer.Send([]string{"AUTHENTICATE"}, base64.StdEncoding.EncodeToString(resp), true)
}

func (m *Machine) handleSASLResult(result SASLState) error {
	if m.Stage != SASL {
		return nil
	}
	m.SASLState = result
	if result == Fail {
		m.logf("registration: SASL authentication failed")
	}
	m.Stage = Connecting
	return m.writer.Send([]string{"CAP", "END"}, "", false)
}

func (m *Machine) handleNickInUse(msg *ircmsg.Message) error {
	m.state.CurrNickname += "_"
	m.state.AltNickname = true
	return m.writer.Send([]string{"NICK", m.state.CurrNickname}, "", false)
}

func (m *Machine) handleEndOfMOTD() error {
	if m.Stage == AwaitingGhost || m.Stage == Connected {
		return nil
	}
	if m.conn.Authentication == "nickserv" && !m.state.AltNickname {
		if err := m.writer.Send([]string{"PRIVMSG", "NickServ"}, "IDENTIFY "+m.conn.Nickname+" "+m.conn.AuthPassword, true); err != nil {
			return err
		}
		return m.joinChannels()
	}
	if m.state.AltNickname && m.conn.Authentication != "" && m.conn.AuthPassword != "" {
		m.Stage = AwaitingGhost
		m.ghostDeadline = time.Now().Add(GhostWaitTimeout)
		if err := m.writer.Send([]string{"PRIVMSG", "NickServ"}, fmt.Sprintf("GHOST %s %s", m.conn.Nickname, m.conn.AuthPassword), true); err != nil {
			return err
		}
		return m.writer.Send([]string{"PRIVMSG", "NickServ"}, fmt.Sprintf("RECOVER %s %s", m.conn.Nickname, m.conn.AuthPassword), true)
	}
	return m.joinChannels()
}

func (m *Machine) handleNotice(msg *ircmsg.Message) error {
	if m.Stage != AwaitingGhost {
		return nil
	}
	if !strings.Contains(msg.Trailing(), "has been ghosted") {
		return nil
	}
	return m.finishGhost()
}

// finishGhost reclaims the primary nickname after a successful (or
// timed-out) GHOST, identifies, and proceeds to auto-join.
func (m *Machine) finishGhost() error {
	if err := m.writer.Send([]string{"NICK", m.conn.Nickname}, "", false); err != nil {
		return err
	}
	m.state.CurrNickname = m.conn.Nickname
	m.state.AltNickname = false
	if err := m.writer.Send([]string{"PRIVMSG", "NickServ"}, fmt.Sprintf("IDENTIFY %s %s", m.conn.Nickname, m.conn.AuthPassword), true); err != nil {
		return err
	}
	return m.joinChannels()
}

// joinChannels sends the configured auto-join channels, batched into as
// few JOIN lines as the 512-byte wire limit allows (adapted from the
// teacher's multi-upstream JOIN batching, ircutil.Join, now exposed as
// ircmsg.BuildJoins).
func (m *Machine) joinChannels() error {
	for _, line := range ircmsg.BuildJoins(m.chans, ircmsg.MaxLineLength-2) {
		if err := m.writer.SendRaw(line); err != nil {
			return err
		}
	}
	m.Stage = Connected
	return nil
}

// Package ircconn implements the transport layer: dialing (plain or
// TLS), the exponential reconnect backoff schedule, line framing over
// the raw byte stream, and a mutex-serialized wire writer. It is
// grounded on the teacher's connectToUpstream (delthas-soju/upstream.go)
// for the dial/TLS shape, generalized from a multi-upstream bouncer
// connection to this bot's single always-reconnecting client
// connection.
package ircconn

import (
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"drastik.org/drastikbot/ircmsg"
)

// ReadTimeout is the read deadline applied to the socket per §4.4: a
// read that has made no progress in this long is treated as a dead
// connection.
const ReadTimeout = 300 * time.Second

// Options configures Dial.
type Options struct {
	Network string
	Port    int
	SSL     bool

	// NetPassword, if non-empty, is sent as PASS before any other
	// command once the socket is up.
	NetPassword string
}

// Conn is one live IRC transport session: a framed reader and a
// mutex-serialized writer over a single net.Conn.
type Conn struct {
	netConn net.Conn
	reader  *lineReader
	writer  *Writer
}

// Dial opens a TCP connection to opts.Network:opts.Port, wrapping it in
// a TLS client handshake (verifying the server name) when opts.SSL is
// set. If opts.NetPassword is set, PASS is sent immediately, before any
// other command, per §4.4.
func Dial(opts Options) (*Conn, error) {
	addr := fmt.Sprintf("%s:%d", opts.Network, opts.Port)

	dialer := net.Dialer{Timeout: 30 * time.Second}
	netConn, err := dialer.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("ircconn: dial %s: %w", addr, err)
	}

	if opts.SSL {
		tlsConn := tls.Client(netConn, &tls.Config{ServerName: opts.Network})
		if err := tlsConn.Handshake(); err != nil {
			netConn.Close()
			return nil, fmt.Errorf("ircconn: TLS handshake with %s: %w", addr, err)
		}
		netConn = tlsConn
	}

	c := &Conn{
		netConn: netConn,
		reader:  newLineReader(netConn),
		writer:  newWriter(netConn),
	}

	if opts.NetPassword != "" {
		if err := c.writer.Send([]string{"PASS", opts.NetPassword}, "", false); err != nil {
			c.Close()
			return nil, fmt.Errorf("ircconn: sending PASS: %w", err)
		}
	}

	return c, nil
}

// Close closes the underlying socket.
func (c *Conn) Close() error {
	return c.netConn.Close()
}

// Writer returns the connection's wire writer.
func (c *Conn) Writer() *Writer {
	return c.writer
}

// ReadMessage blocks until a full line has been read and parsed, or
// returns an error (including io.EOF on a clean close, or a parse error
// for one malformed line — callers should log and continue reading on a
// *ircmsg.ParseError rather than tearing down the connection, per §7).
func (c *Conn) ReadMessage() (*ircmsg.Message, error) {
	c.netConn.SetReadDeadline(time.Now().Add(ReadTimeout))
	line, err := c.reader.ReadLine()
	if err != nil {
		return nil, err
	}
	return ircmsg.Parse(line)
}

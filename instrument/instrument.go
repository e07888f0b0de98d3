package instrument

import (
	"bufio"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/tarm/serial"
)

// Config holds the serial parameters for one instrument session.
type Config struct {
	Port    string
	Baud    int
	Timeout time.Duration
}

// Conn represents a half-duplex command session with one instrument.
//
// Only one command may be outstanding at a time; Send and Query
// serialize behind a mutex. A Conn is owned by exactly one adapter and
// must not be shared.
type Conn struct {
	port    string
	timeout time.Duration

	mx     sync.Mutex
	rw     io.ReadWriter
	br     *bufio.Reader
	closed bool
}

// NewConn creates a Conn using the provided ReadWriter for data.
func NewConn(rw io.ReadWriter) *Conn {
	return &Conn{rw: rw, br: bufio.NewReader(rw)}
}

// Open opens the serial port described by cfg.
func Open(cfg Config) (*Conn, error) {
	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Port,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.Timeout,
	})
	if err != nil {
		return nil, &ConnectionError{Port: cfg.Port, Err: err}
	}
	c := NewConn(port)
	c.port = cfg.Port
	c.timeout = cfg.Timeout
	return c, nil
}

// Send writes one command line. No reply is expected.
func (c *Conn) Send(cmd string) error {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.write(cmd)
}

// Query writes one command line and reads one reply line. A silent
// instrument surfaces as a TimeoutError once the read timeout fires.
func (c *Conn) Query(cmd string) (string, error) {
	c.mx.Lock()
	defer c.mx.Unlock()
	if err := c.write(cmd); err != nil {
		return "", err
	}
	line, err := c.br.ReadString('\n')
	if err != nil {
		if line != "" {
			// unterminated reply, e.g. final line before a port timeout
			return strings.TrimSpace(line), nil
		}
		if err == io.EOF {
			return "", &TimeoutError{Op: cmd, After: c.timeout}
		}
		return "", &ConnectionError{Port: c.port, Err: err}
	}
	return strings.TrimSpace(line), nil
}

// Identify runs the standard identity query.
func (c *Conn) Identify() (string, error) {
	return c.Query("*IDN?")
}

func (c *Conn) write(cmd string) error {
	if c.closed {
		return io.ErrClosedPipe
	}
	if _, err := io.WriteString(c.rw, cmd+"\n"); err != nil {
		return &ConnectionError{Port: c.port, Err: err}
	}
	return nil
}

// Close closes the underlying ReadWriter, if it implements io.Closer.
// Further calls on the Conn fail.
func (c *Conn) Close() error {
	c.mx.Lock()
	defer c.mx.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if closer, ok := c.rw.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

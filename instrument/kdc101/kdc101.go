// Package kdc101 drives a Thorlabs KDC101 brushed-motor controller on a
// single axis. The controller speaks a line-oriented mnemonic grammar:
// ID?, HOME, MA <pos>, MR <delta>, VEL <v>, POS?, STAT?.
package kdc101

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/gonum/floats/scalar"

	"github.com/qlmgroup/phoswitch/instrument"
)

const (
	DefaultPollInterval = 50 * time.Millisecond
	DefaultMoveTimeout  = 30 * time.Second
	DefaultTolerance    = 1e-3 // mm
)

// Limits bound the travel of one axis in mm.
type Limits struct{ Min, Max float64 }

// Target is one motion request: an absolute position, or an offset from
// the last confirmed position when Relative is set, with an optional
// velocity override. Targets are transient value objects consumed by a
// single MoveTo call.
type Target struct {
	Pos      float64
	Relative bool
	Velocity float64 // mm/s, 0 keeps the controller default
}

// Motor is the motion controller adapter for one axis.
type Motor struct {
	conn   *instrument.Conn
	limits Limits

	homed bool
	pos   float64 // last confirmed position

	// Axis names the axis in errors ("x", "y").
	Axis string
	// PollInterval is how often motion status is sampled while a
	// blocking operation is in flight.
	PollInterval time.Duration
	// MoveTimeout bounds a single move.
	MoveTimeout time.Duration
	// Tolerance is the settled-position acceptance window in mm.
	Tolerance float64
}

// NewMotor creates a Motor over an existing session.
func NewMotor(conn *instrument.Conn, lim Limits) *Motor {
	return &Motor{
		conn:         conn,
		limits:       lim,
		PollInterval: DefaultPollInterval,
		MoveTimeout:  DefaultMoveTimeout,
		Tolerance:    DefaultTolerance,
	}
}

// Connect opens the port described by cfg and verifies the controller
// identity before handing out the adapter.
func Connect(cfg instrument.Config, lim Limits) (*Motor, error) {
	conn, err := instrument.Open(cfg)
	if err != nil {
		return nil, err
	}
	m := NewMotor(conn, lim)
	if _, err := m.Identify(); err != nil {
		conn.Close()
		return nil, &instrument.ConnectionError{Port: cfg.Port, Err: err}
	}
	return m, nil
}

// Identify queries and checks the controller identity.
func (m *Motor) Identify() (string, error) {
	idn, err := m.conn.Query("ID?")
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(idn, "THORLABS,KDC101") {
		return idn, fmt.Errorf("unexpected identity %q", idn)
	}
	return idn, nil
}

// Home establishes the absolute position reference. It blocks until the
// controller reports idle or timeout elapses. Until a Home succeeds,
// moves and position queries are refused.
func (m *Motor) Home(timeout time.Duration) error {
	m.homed = false
	if err := m.command("HOME"); err != nil {
		return err
	}
	if err := m.waitIdle("home "+m.Axis, timeout); err != nil {
		return err
	}
	pos, err := m.readPosition()
	if err != nil {
		return err
	}
	m.pos = pos
	m.homed = true
	return nil
}

// Homed reports whether the position reference has been established.
func (m *Motor) Homed() bool { return m.homed }

// MoveTo executes one motion request and blocks until the axis settles
// at the target or the move times out. The target is validated against
// the travel limits before any command is sent.
func (m *Motor) MoveTo(t Target) error {
	if !m.homed {
		return &instrument.DeviceError{Device: "KDC101", Status: "axis " + m.Axis + " not homed"}
	}
	target := t.Pos
	if t.Relative {
		target = m.pos + t.Pos
	}
	if target < m.limits.Min || target > m.limits.Max {
		return &instrument.OutOfRangeError{Axis: m.Axis, Target: target, Min: m.limits.Min, Max: m.limits.Max}
	}
	if t.Velocity > 0 {
		if err := m.command("VEL " + formatFloat(t.Velocity)); err != nil {
			return err
		}
	}
	cmd := "MA " + formatFloat(target)
	if t.Relative {
		cmd = "MR " + formatFloat(t.Pos)
	}
	if err := m.command(cmd); err != nil {
		return err
	}
	if err := m.waitIdle("move "+m.Axis, m.MoveTimeout); err != nil {
		return err
	}
	pos, err := m.readPosition()
	if err != nil {
		return err
	}
	if !scalar.EqualWithinAbs(pos, target, m.Tolerance) {
		return &instrument.DeviceError{
			Device: "KDC101",
			Status: fmt.Sprintf("axis %s settled at %g, wanted %g", m.Axis, pos, target),
		}
	}
	m.pos = pos
	return nil
}

// Position reads the current axis position from the controller. It is
// side-effect free and available once the axis is homed.
func (m *Motor) Position() (float64, error) {
	if !m.homed {
		return 0, &instrument.DeviceError{Device: "KDC101", Status: "axis " + m.Axis + " not homed"}
	}
	return m.readPosition()
}

// Close releases the session.
func (m *Motor) Close() error { return m.conn.Close() }

// command sends one acknowledged command. The controller answers OK or
// an ERR:* code.
func (m *Motor) command(cmd string) error {
	reply, err := m.conn.Query(cmd)
	if err != nil {
		return err
	}
	switch {
	case reply == "OK":
		return nil
	case reply == "ERR:RANGE":
		return &instrument.OutOfRangeError{Axis: m.Axis, Min: m.limits.Min, Max: m.limits.Max}
	default:
		return &instrument.DeviceError{Device: "KDC101", Status: reply}
	}
}

func (m *Motor) waitIdle(op string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = m.MoveTimeout
	}
	deadline := time.Now().Add(timeout)
	for {
		status, err := m.conn.Query("STAT?")
		if err != nil {
			return err
		}
		switch {
		case status == "IDLE":
			return nil
		case strings.HasPrefix(status, "FAULT"):
			return &instrument.DeviceError{Device: "KDC101", Status: status}
		}
		if time.Now().After(deadline) {
			return &instrument.TimeoutError{Op: op, After: timeout}
		}
		time.Sleep(m.PollInterval)
	}
}

func (m *Motor) readPosition() (float64, error) {
	reply, err := m.conn.Query("POS?")
	if err != nil {
		return 0, err
	}
	pos, err := strconv.ParseFloat(strings.TrimSpace(reply), 64)
	if err != nil {
		return 0, &instrument.DeviceError{Device: "KDC101", Status: "bad position reply: " + reply}
	}
	return pos, nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

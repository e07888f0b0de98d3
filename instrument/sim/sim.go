// Package sim provides simulated instrument firmware for the rig. The
// doubles sit at the send-command/read-response boundary: each one
// implements io.ReadWriter and plugs straight into instrument.NewConn,
// so adapters and the sequencer run unmodified against them.
package sim

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
)

// device is the shared line transport: command lines written in, queued
// reply lines read out. An empty reply queue reads as io.EOF, which is
// how a silent serial port looks after its read timeout.
type device struct {
	mx      sync.Mutex
	replies []string
	handle  func(cmd string)
	closed  bool

	// Log records every command line received, in order.
	Log []string
}

func (d *device) Write(p []byte) (int, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	if d.closed {
		return 0, io.ErrClosedPipe
	}
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		line = strings.TrimSpace(line)
		d.Log = append(d.Log, line)
		d.handle(line)
	}
	return len(p), nil
}

func (d *device) Read(p []byte) (int, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	if d.closed {
		return 0, io.ErrClosedPipe
	}
	if len(d.replies) == 0 {
		return 0, io.EOF
	}
	line := d.replies[0] + "\n"
	if len(p) < len(line) {
		return 0, io.ErrShortBuffer
	}
	d.replies = d.replies[1:]
	return copy(p, line), nil
}

func (d *device) Close() error {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.closed = true
	return nil
}

func (d *device) reply(s string) { d.replies = append(d.replies, s) }

type genChannel struct {
	output bool
	load   string
	wave   string
	burst  string
}

// Generator emulates the command surface of a BK 4063B two-channel
// waveform generator.
type Generator struct {
	device

	// FaultOutput makes the instrument report a fault on output queries.
	FaultOutput bool
	// Silent drops all replies, so every query times out.
	Silent bool

	chans map[string]*genChannel
}

// NewGenerator returns a generator with both outputs off and the
// factory default waveform programmed.
func NewGenerator() *Generator {
	g := &Generator{chans: map[string]*genChannel{
		"C1": {load: "HZ", wave: "WVTP,SINE,FRQ,1000,AMP,4,OFST,0"},
		"C2": {load: "HZ", wave: "WVTP,SINE,FRQ,1000,AMP,4,OFST,0"},
	}}
	g.device.handle = g.handleCmd
	return g
}

func (g *Generator) handleCmd(cmd string) {
	if g.Silent {
		return
	}
	if cmd == "*IDN?" {
		g.reply("BK,4063B,SIM574B001,1.04")
		return
	}
	name, rest, ok := strings.Cut(cmd, ":")
	if !ok {
		if strings.HasSuffix(cmd, "?") {
			g.reply("ERR:CMD")
		}
		return
	}
	ch := g.chans[name]
	if ch == nil {
		if strings.HasSuffix(rest, "?") {
			g.reply("ERR:CHAN")
		}
		return
	}
	verb, args, _ := strings.Cut(rest, " ")
	switch verb {
	case "OUTP":
		parts := strings.Split(args, ",")
		ch.output = parts[0] == "ON"
		for i := 1; i+1 < len(parts); i += 2 {
			if parts[i] == "LOAD" {
				ch.load = parts[i+1]
			}
		}
	case "OUTP?":
		if g.FaultOutput {
			g.reply(name + ":OUTP FAULT:OVERLOAD")
			return
		}
		mode := "OFF"
		if ch.output {
			mode = "ON"
		}
		g.reply(fmt.Sprintf("%s:OUTP %s,LOAD,%s", name, mode, ch.load))
	case "BSWV":
		ch.wave = args
	case "BSWV?":
		g.reply(name + ":BSWV " + ch.wave)
	case "BTWV":
		ch.burst = args
	case "BTWV?":
		g.reply(name + ":BTWV " + ch.burst)
	default:
		if strings.HasSuffix(verb, "?") {
			g.reply("ERR:CMD")
		}
	}
}

// Motor emulates a KDC101 controller driving one axis.
type Motor struct {
	device

	// SettlePolls is how many STAT? polls a home or move takes before
	// the axis reports idle. Minimum 1.
	SettlePolls int
	// StickAfter jams the axis after that many accepted moves; 0
	// disables. A jammed axis never settles.
	StickAfter int
	// FaultStatus, when non-empty, is reported by STAT? in place of
	// the motion state.
	FaultStatus string

	// Min, Max are the controller's own travel bounds.
	Min, Max float64

	// Moves counts accepted MA/MR commands.
	Moves int

	pos, target float64
	moving      bool
	polls       int
}

// NewMotor returns a motor with the given controller travel bounds,
// parked at an unknown position until homed.
func NewMotor(min, max float64) *Motor {
	m := &Motor{SettlePolls: 1, Min: min, Max: max, pos: (min + max) / 2}
	m.device.handle = m.handleCmd
	return m
}

func (m *Motor) handleCmd(cmd string) {
	verb, args, _ := strings.Cut(cmd, " ")
	switch verb {
	case "ID?":
		m.reply("THORLABS,KDC101,SIM27004312")
	case "HOME":
		m.startMotion(0)
		m.reply("OK")
	case "MA":
		target, err := strconv.ParseFloat(args, 64)
		if err != nil || target < m.Min || target > m.Max {
			m.reply("ERR:RANGE")
			return
		}
		m.Moves++
		m.startMotion(target)
		m.reply("OK")
	case "MR":
		delta, err := strconv.ParseFloat(args, 64)
		target := m.pos + delta
		if err != nil || target < m.Min || target > m.Max {
			m.reply("ERR:RANGE")
			return
		}
		m.Moves++
		m.startMotion(target)
		m.reply("OK")
	case "VEL":
		if _, err := strconv.ParseFloat(args, 64); err != nil {
			m.reply("ERR:PARAM")
			return
		}
		m.reply("OK")
	case "POS?":
		m.reply(strconv.FormatFloat(m.pos, 'g', -1, 64))
	case "STAT?":
		m.reply(m.status())
	default:
		m.reply("ERR:CMD")
	}
}

func (m *Motor) startMotion(target float64) {
	m.target = target
	m.moving = true
	m.polls = 0
}

func (m *Motor) status() string {
	if m.FaultStatus != "" {
		return m.FaultStatus
	}
	if !m.moving {
		return "IDLE"
	}
	if m.StickAfter > 0 && m.Moves > m.StickAfter {
		return "MOVING"
	}
	m.polls++
	if m.polls >= m.SettlePolls {
		m.moving = false
		m.pos = m.target
		return "IDLE"
	}
	return "MOVING"
}

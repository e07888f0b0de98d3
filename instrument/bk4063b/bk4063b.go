// Package bk4063b drives a BK Precision 4063B dual-channel waveform
// generator over its SCPI-style serial command set.
package bk4063b

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/qlmgroup/phoswitch/instrument"
	"github.com/qlmgroup/phoswitch/pattern"
)

// Channel selects one of the two generator outputs. On the optical
// switching rig C1 carries the digital (pulse) modulation and C2 the
// analog (DC level) modulation.
type Channel string

const (
	C1 Channel = "C1"
	C2 Channel = "C2"
)

// Instrument-documented limits. Amplitude and offset are capped at 5V
// because that is the most the laser modulators on the rig accept.
const (
	MaxAmplitude = 5.0  // Vpp
	MaxOffset    = 5.0  // V
	MaxFrequency = 80e6 // Hz
	MaxBurstPrd  = 1000 // s
)

// Generator is the waveform generator adapter. It keeps no state beyond
// the open session; sequencing lives in the experiment package.
type Generator struct {
	conn *instrument.Conn
}

// NewGenerator creates a Generator over an existing session.
func NewGenerator(conn *instrument.Conn) *Generator {
	return &Generator{conn: conn}
}

// Connect opens the port described by cfg and verifies the instrument
// identity before handing out the adapter.
func Connect(cfg instrument.Config) (*Generator, error) {
	conn, err := instrument.Open(cfg)
	if err != nil {
		return nil, err
	}
	g := NewGenerator(conn)
	if _, err := g.Identify(); err != nil {
		conn.Close()
		return nil, &instrument.ConnectionError{Port: cfg.Port, Err: err}
	}
	return g, nil
}

// Identify queries and checks the instrument identity.
func (g *Generator) Identify() (string, error) {
	idn, err := g.conn.Identify()
	if err != nil {
		return "", err
	}
	parts := strings.Split(idn, ",")
	if len(parts) < 2 || parts[0] != "BK" || parts[1] != "4063B" {
		return idn, fmt.Errorf("unexpected identity %q", idn)
	}
	return idn, nil
}

// Configure programs a basic waveform on the given channel. The
// waveform is validated against the instrument limits before any
// command is sent.
func (g *Generator) Configure(ch Channel, w pattern.Waveform) error {
	if err := validate(w); err != nil {
		return err
	}
	return g.conn.Send(string(ch) + ":BSWV " + basicWave(w))
}

func validate(w pattern.Waveform) error {
	if w.Amplitude < 0 || w.Amplitude > MaxAmplitude {
		return &instrument.InvalidParameterError{Param: "amplitude", Value: w.Amplitude, Min: 0, Max: MaxAmplitude}
	}
	if w.Offset < -MaxOffset || w.Offset > MaxOffset {
		return &instrument.InvalidParameterError{Param: "offset", Value: w.Offset, Min: -MaxOffset, Max: MaxOffset}
	}
	if w.Shape != pattern.ShapeDC {
		if w.Frequency <= 0 || w.Frequency > MaxFrequency {
			return &instrument.InvalidParameterError{Param: "frequency", Value: w.Frequency, Min: 0, Max: MaxFrequency}
		}
	}
	if w.Shape == pattern.ShapePulse {
		if w.Width <= 0 || w.Width >= 1/w.Frequency {
			return &instrument.InvalidParameterError{Param: "width", Value: w.Width, Min: 0, Max: 1 / w.Frequency}
		}
	}
	if w.Shape == pattern.ShapeSquare && (w.Duty < 0 || w.Duty > 100) {
		return &instrument.InvalidParameterError{Param: "duty", Value: w.Duty, Min: 0, Max: 100}
	}
	return nil
}

func basicWave(w pattern.Waveform) string {
	args := []string{"WVTP", string(w.Shape)}
	if w.Shape == pattern.ShapeDC {
		args = append(args, "OFST", formatFloat(w.Offset))
		return strings.Join(args, ",")
	}
	args = append(args,
		"FRQ", formatFloat(w.Frequency),
		"AMP", formatFloat(w.Amplitude),
		"OFST", formatFloat(w.Offset),
	)
	if w.Shape == pattern.ShapePulse {
		args = append(args, "WIDTH", formatFloat(w.Width))
	}
	if w.Shape == pattern.ShapeSquare && w.Duty > 0 {
		args = append(args, "DUTY", formatFloat(w.Duty))
	}
	return strings.Join(args, ",")
}

// BurstConfig describes burst modulation of a carrier waveform,
// internally triggered once per period.
type BurstConfig struct {
	Carrier pattern.Shape
	Period  float64 // s
	Delay   float64 // s
}

// Burst arms burst modulation on the channel.
func (g *Generator) Burst(ch Channel, b BurstConfig) error {
	if b.Period <= 0 || b.Period > MaxBurstPrd {
		return &instrument.InvalidParameterError{Param: "burst period", Value: b.Period, Min: 0, Max: MaxBurstPrd}
	}
	args := []string{
		"STATE", "ON",
		"TRSR", "INT",
		"PRD", formatFloat(b.Period),
	}
	if b.Delay > 0 {
		args = append(args, "DLAY", formatFloat(b.Delay))
	}
	args = append(args, "CARR", "WVTP", string(b.Carrier))
	return g.conn.Send(string(ch) + ":BTWV " + strings.Join(args, ","))
}

// SetOutput switches the channel output, terminated into high
// impedance, and reads the mode back to confirm it was applied.
func (g *Generator) SetOutput(ch Channel, on bool) error {
	mode := "OFF"
	if on {
		mode = "ON"
	}
	if err := g.conn.Send(fmt.Sprintf("%s:OUTP %s,LOAD,HZ", ch, mode)); err != nil {
		return err
	}
	st, err := g.Status(ch)
	if err != nil {
		return err
	}
	if st.Fault != "" {
		return &instrument.DeviceError{Device: "BK4063B", Status: st.Fault}
	}
	if st.Output != on {
		return &instrument.DeviceError{Device: "BK4063B", Status: fmt.Sprintf("%s output %s not applied", ch, mode)}
	}
	return nil
}

// Status reads back the applied output mode and waveform of one
// channel. It is side-effect free.
func (g *Generator) Status(ch Channel) (ChannelStatus, error) {
	var st ChannelStatus
	outp, err := g.conn.Query(string(ch) + ":OUTP?")
	if err != nil {
		return st, err
	}
	if err := parseOutput(&st, outp); err != nil {
		return st, err
	}
	bswv, err := g.conn.Query(string(ch) + ":BSWV?")
	if err != nil {
		return st, err
	}
	if err := parseWave(&st, bswv); err != nil {
		return st, err
	}
	return st, nil
}

// Close releases the session.
func (g *Generator) Close() error { return g.conn.Close() }

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

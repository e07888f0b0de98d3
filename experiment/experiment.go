// Package experiment sequences the optical-switching rig: a BK 4063B
// waveform generator modulating the write laser and two KDC101 motors
// positioning the sample. A run writes a pattern of pixels, one
// move-and-pulse at a time.
package experiment

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/floats/scalar"

	"github.com/qlmgroup/phoswitch/instrument"
	"github.com/qlmgroup/phoswitch/instrument/bk4063b"
	"github.com/qlmgroup/phoswitch/instrument/kdc101"
	"github.com/qlmgroup/phoswitch/pattern"
)

// State tracks where the sequencer is in the calibrate/run workflow.
type State int

const (
	Uninitialized State = iota
	Calibrated
	Running
	Faulted
	Complete
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "Uninitialized"
	case Calibrated:
		return "Calibrated"
	case Running:
		return "Running"
	case Faulted:
		return "Faulted"
	case Complete:
		return "Complete"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// StateError reports an operation attempted from the wrong state.
type StateError struct {
	Op    string
	State State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("experiment: %s not allowed while %s", e.Op, e.State)
}

// PixelError reports which pixel of a run failed and why. The remaining
// pixels were not attempted.
type PixelError struct {
	Index int
	Err   error
}

func (e *PixelError) Error() string {
	return fmt.Sprintf("experiment: pixel %d: %v", e.Index, e.Err)
}

func (e *PixelError) Unwrap() error { return e.Err }

const (
	DefaultHomeTimeout     = 2 * time.Minute
	DefaultAnalogAmplitude = 5.0 // V
	DefaultBurstPeriod     = 1.5 // s
)

// Options tune the sequencer independently of the instruments it owns.
type Options struct {
	HomeTimeout time.Duration
	// Tolerance is the accepted position error when confirming a
	// written pixel, in mm.
	Tolerance float64
	// AnalogAmplitude is the constant DC level driven on C2 while a
	// pixel is written.
	AnalogAmplitude float64
	// BurstPeriod is the one-shot burst period armed on C1.
	BurstPeriod float64
}

// Sequencer composes the generator and the two axis motors into the
// two-phase calibrate/run workflow. It owns its adapters: the caller
// hands them over at construction and tears the whole rig down with
// Close.
type Sequencer struct {
	gen  *bk4063b.Generator
	x, y *kdc101.Motor

	opt   Options
	state State
}

// New creates a Sequencer over already-connected adapters.
func New(gen *bk4063b.Generator, x, y *kdc101.Motor, opt Options) *Sequencer {
	if opt.HomeTimeout <= 0 {
		opt.HomeTimeout = DefaultHomeTimeout
	}
	if opt.Tolerance <= 0 {
		opt.Tolerance = kdc101.DefaultTolerance
	}
	if opt.AnalogAmplitude <= 0 {
		opt.AnalogAmplitude = DefaultAnalogAmplitude
	}
	if opt.BurstPeriod <= 0 {
		opt.BurstPeriod = DefaultBurstPeriod
	}
	return &Sequencer{gen: gen, x: x, y: y, opt: opt}
}

// Connect opens all three instrument sessions described by cfg. On any
// failure the sessions already opened are closed before returning.
func Connect(cfg Config) (*Sequencer, error) {
	gen, err := bk4063b.Connect(cfg.Generator)
	if err != nil {
		return nil, err
	}
	x, err := connectAxis("x", cfg.X, cfg)
	if err != nil {
		gen.Close()
		return nil, err
	}
	y, err := connectAxis("y", cfg.Y, cfg)
	if err != nil {
		gen.Close()
		x.Close()
		return nil, err
	}
	return New(gen, x, y, Options{
		HomeTimeout:     cfg.HomeTimeout,
		Tolerance:       cfg.Tolerance,
		AnalogAmplitude: cfg.AnalogAmplitude,
		BurstPeriod:     cfg.BurstPeriod,
	}), nil
}

func connectAxis(name string, ax AxisConfig, cfg Config) (*kdc101.Motor, error) {
	m, err := kdc101.Connect(instrument.Config{
		Port:    ax.Port,
		Baud:    ax.Baud,
		Timeout: cfg.SerialTimeout,
	}, ax.Limits)
	if err != nil {
		return nil, err
	}
	m.Axis = name
	if cfg.MoveTimeout > 0 {
		m.MoveTimeout = cfg.MoveTimeout
	}
	if cfg.Tolerance > 0 {
		m.Tolerance = cfg.Tolerance
	}
	return m, nil
}

// State returns the current workflow state.
func (s *Sequencer) State() State { return s.state }

// Calibrate verifies the rig is ready to write: both axes home
// successfully and the generator answers status queries and can toggle
// its outputs. On success the sequencer is Calibrated; on any adapter
// error it is Faulted and the error is returned unmodified. Calling
// Calibrate again from Faulted or Complete resets the rig for another
// run.
func (s *Sequencer) Calibrate() error {
	if s.state == Running {
		return &StateError{Op: "calibrate", State: s.state}
	}
	if err := s.calibrate(); err != nil {
		s.state = Faulted
		ProblemLogger.Printf("calibration failed: %v", err)
		return err
	}
	s.state = Calibrated
	return nil
}

func (s *Sequencer) calibrate() error {
	ProblemLogger.Printf("calibrating: homing axes")
	if err := s.x.Home(s.opt.HomeTimeout); err != nil {
		return err
	}
	if err := s.y.Home(s.opt.HomeTimeout); err != nil {
		return err
	}
	for _, ch := range []bk4063b.Channel{bk4063b.C1, bk4063b.C2} {
		if _, err := s.gen.Status(ch); err != nil {
			return err
		}
	}
	// pulse both outputs once so a wiring or overload problem shows up
	// before committing sample material to a run
	for _, on := range []bool{true, false} {
		if err := s.gen.SetOutput(bk4063b.C1, on); err != nil {
			return err
		}
		if err := s.gen.SetOutput(bk4063b.C2, on); err != nil {
			return err
		}
	}
	xPos, err := s.x.Position()
	if err != nil {
		return err
	}
	yPos, err := s.y.Position()
	if err != nil {
		return err
	}
	ProblemLogger.Printf("calibration complete: x=%g y=%g", xPos, yPos)
	return nil
}

// Run writes every pixel of p in order. It requires a calibrated rig.
// The first failing pixel faults the sequencer and aborts the rest; on
// success the sequencer is Complete until the next Calibrate.
func (s *Sequencer) Run(p pattern.Pattern) error {
	if s.state != Calibrated {
		return &StateError{Op: "run", State: s.state}
	}
	s.state = Running
	for i, px := range p {
		if err := s.writePixel(px); err != nil {
			s.state = Faulted
			perr := &PixelError{Index: i, Err: err}
			ProblemLogger.Printf("run aborted: %v", perr)
			return perr
		}
		ProblemLogger.Printf("pixel %d/%d written at x=%g y=%g", i+1, len(p), px.Pos.X, px.Pos.Y)
	}
	s.state = Complete
	return nil
}

// writePixel is one atomic write: position the sample, program both
// modulations, hold the outputs for the dwell, shut off, and confirm
// the stage did not drift.
func (s *Sequencer) writePixel(px pattern.Pixel) error {
	if err := s.x.MoveTo(kdc101.Target{Pos: px.Pos.X}); err != nil {
		return err
	}
	if err := s.y.MoveTo(kdc101.Target{Pos: px.Pos.Y}); err != nil {
		return err
	}

	// analog modulation: constant DC level on C2
	dc := pattern.Waveform{Shape: pattern.ShapeDC, Offset: s.opt.AnalogAmplitude}
	if err := s.gen.Configure(bk4063b.C2, dc); err != nil {
		return err
	}
	// digital modulation: the pixel's waveform as a one-shot burst on C1
	if err := s.gen.Configure(bk4063b.C1, px.Wave); err != nil {
		return err
	}
	if err := s.gen.Burst(bk4063b.C1, bk4063b.BurstConfig{
		Carrier: px.Wave.Shape,
		Period:  s.opt.BurstPeriod,
	}); err != nil {
		return err
	}

	if err := s.gen.SetOutput(bk4063b.C1, true); err != nil {
		return err
	}
	if err := s.gen.SetOutput(bk4063b.C2, true); err != nil {
		return err
	}
	time.Sleep(px.Dwell)
	if err := s.gen.SetOutput(bk4063b.C1, false); err != nil {
		return err
	}
	if err := s.gen.SetOutput(bk4063b.C2, false); err != nil {
		return err
	}

	return s.confirmPosition(px.Pos)
}

func (s *Sequencer) confirmPosition(want pattern.Point) error {
	gotX, err := s.x.Position()
	if err != nil {
		return err
	}
	gotY, err := s.y.Position()
	if err != nil {
		return err
	}
	if !scalar.EqualWithinAbs(gotX, want.X, s.opt.Tolerance) ||
		!scalar.EqualWithinAbs(gotY, want.Y, s.opt.Tolerance) {
		return &instrument.DeviceError{
			Device: "KDC101",
			Status: fmt.Sprintf("stage at (%g, %g) after writing (%g, %g)", gotX, gotY, want.X, want.Y),
		}
	}
	return nil
}

// Close releases all three instrument sessions regardless of state.
func (s *Sequencer) Close() error {
	errGen := s.gen.Close()
	errX := s.x.Close()
	errY := s.y.Close()
	if errGen != nil {
		return errGen
	}
	if errX != nil {
		return errX
	}
	return errY
}

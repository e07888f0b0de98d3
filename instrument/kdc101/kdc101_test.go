package kdc101

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qlmgroup/phoswitch/instrument"
	"github.com/qlmgroup/phoswitch/instrument/sim"
)

func newTestMotor(lim Limits) (*Motor, *sim.Motor) {
	dev := sim.NewMotor(lim.Min, lim.Max)
	m := NewMotor(instrument.NewConn(dev), lim)
	m.Axis = "x"
	m.PollInterval = time.Millisecond
	return m, dev
}

func TestIdentify(t *testing.T) {
	m, _ := newTestMotor(Limits{Max: 25})
	idn, err := m.Identify()
	require.NoError(t, err)
	assert.Equal(t, "THORLABS,KDC101,SIM27004312", idn)
}

func TestHomeAndMove(t *testing.T) {
	m, _ := newTestMotor(Limits{Max: 25})

	assert.False(t, m.Homed())
	require.NoError(t, m.Home(time.Second))
	assert.True(t, m.Homed())

	pos, err := m.Position()
	require.NoError(t, err)
	assert.Equal(t, 0.0, pos)

	require.NoError(t, m.MoveTo(Target{Pos: 12.5}))
	pos, err = m.Position()
	require.NoError(t, err)
	assert.InDelta(t, 12.5, pos, DefaultTolerance)
}

func TestMoveIdempotent(t *testing.T) {
	m, _ := newTestMotor(Limits{Max: 25})
	require.NoError(t, m.Home(time.Second))

	for i := 0; i < 3; i++ {
		require.NoError(t, m.MoveTo(Target{Pos: 7.25}))
		pos, err := m.Position()
		require.NoError(t, err)
		assert.InDelta(t, 7.25, pos, DefaultTolerance)
	}
}

func TestMoveRelative(t *testing.T) {
	m, _ := newTestMotor(Limits{Max: 25})
	require.NoError(t, m.Home(time.Second))

	require.NoError(t, m.MoveTo(Target{Pos: 10}))
	require.NoError(t, m.MoveTo(Target{Pos: -2.5, Relative: true}))
	pos, err := m.Position()
	require.NoError(t, err)
	assert.InDelta(t, 7.5, pos, DefaultTolerance)
}

func TestMoveWithVelocity(t *testing.T) {
	m, dev := newTestMotor(Limits{Max: 25})
	require.NoError(t, m.Home(time.Second))

	require.NoError(t, m.MoveTo(Target{Pos: 5, Velocity: 2.4}))
	assert.Contains(t, dev.Log, "VEL 2.4")
}

func TestMoveOutOfRange(t *testing.T) {
	m, dev := newTestMotor(Limits{Max: 25})
	require.NoError(t, m.Home(time.Second))
	dev.Moves = 0

	err := m.MoveTo(Target{Pos: 30})
	var oor *instrument.OutOfRangeError
	require.ErrorAs(t, err, &oor)
	assert.Equal(t, "x", oor.Axis)
	assert.Equal(t, 30.0, oor.Target)
	// rejected before any command reached the controller
	assert.Equal(t, 0, dev.Moves)

	err = m.MoveTo(Target{Pos: -30, Relative: true})
	require.ErrorAs(t, err, &oor)
	assert.Equal(t, 0, dev.Moves)
}

func TestControllerRangeReply(t *testing.T) {
	// adapter limits wider than the controller's own travel: the
	// controller's ERR:RANGE must still surface as OutOfRangeError
	dev := sim.NewMotor(0, 10)
	m := NewMotor(instrument.NewConn(dev), Limits{Max: 25})
	m.PollInterval = time.Millisecond
	require.NoError(t, m.Home(time.Second))

	err := m.MoveTo(Target{Pos: 20})
	var oor *instrument.OutOfRangeError
	assert.ErrorAs(t, err, &oor)
}

func TestMoveBeforeHome(t *testing.T) {
	m, dev := newTestMotor(Limits{Max: 25})

	err := m.MoveTo(Target{Pos: 5})
	var devErr *instrument.DeviceError
	require.ErrorAs(t, err, &devErr)
	assert.Empty(t, dev.Log)

	_, err = m.Position()
	assert.ErrorAs(t, err, &devErr)
}

func TestMoveTimeout(t *testing.T) {
	m, dev := newTestMotor(Limits{Max: 25})
	require.NoError(t, m.Home(time.Second))

	dev.StickAfter = 1 // jam on the second accepted move
	require.NoError(t, m.MoveTo(Target{Pos: 5}))

	m.MoveTimeout = 10 * time.Millisecond
	err := m.MoveTo(Target{Pos: 10})
	var timeout *instrument.TimeoutError
	require.ErrorAs(t, err, &timeout)
}

func TestHomeTimeout(t *testing.T) {
	m, dev := newTestMotor(Limits{Max: 25})
	dev.SettlePolls = 1 << 30 // never settles

	err := m.Home(10 * time.Millisecond)
	var timeout *instrument.TimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.False(t, m.Homed())
}

func TestControllerFault(t *testing.T) {
	m, dev := newTestMotor(Limits{Max: 25})
	require.NoError(t, m.Home(time.Second))

	dev.FaultStatus = "FAULT:OVERCURRENT"
	err := m.MoveTo(Target{Pos: 5})
	var devErr *instrument.DeviceError
	require.ErrorAs(t, err, &devErr)
	assert.Equal(t, "FAULT:OVERCURRENT", devErr.Status)
}

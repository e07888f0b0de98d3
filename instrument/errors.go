package instrument

import (
	"fmt"
	"time"
)

// ConnectionError indicates the port could not be opened or the
// instrument did not answer an identity query.
type ConnectionError struct {
	Port string
	Err  error
}

func (e *ConnectionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("instrument: connect %s failed", e.Port)
	}
	return fmt.Sprintf("instrument: connect %s: %v", e.Port, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// TimeoutError indicates an operation exceeded its allotted time.
type TimeoutError struct {
	Op    string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	if e.After > 0 {
		return fmt.Sprintf("instrument: %s timed out after %s", e.Op, e.After)
	}
	return fmt.Sprintf("instrument: %s timed out", e.Op)
}

// InvalidParameterError indicates a caller-supplied value outside the
// instrument-documented range.
type InvalidParameterError struct {
	Param    string
	Value    float64
	Min, Max float64
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("instrument: %s=%g outside valid range [%g, %g]",
		e.Param, e.Value, e.Min, e.Max)
}

// OutOfRangeError indicates a motion target outside the travel limits.
type OutOfRangeError struct {
	Axis     string
	Target   float64
	Min, Max float64
}

func (e *OutOfRangeError) Error() string {
	if e.Axis == "" {
		return fmt.Sprintf("instrument: target %g outside travel [%g, %g]",
			e.Target, e.Min, e.Max)
	}
	return fmt.Sprintf("instrument: target %g on axis %s outside travel [%g, %g]",
		e.Target, e.Axis, e.Min, e.Max)
}

// DeviceError indicates a fault reported by the instrument itself.
type DeviceError struct {
	Device string
	Status string
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("instrument: %s reported fault: %s", e.Device, e.Status)
}

package bk4063b

import (
	"errors"
	"strconv"
	"strings"

	"github.com/qlmgroup/phoswitch/pattern"
)

// ChannelStatus reports the applied output mode and waveform of one
// channel.
type ChannelStatus struct {
	Output bool
	Load   string
	Fault  string
	Wave   pattern.Waveform
}

// parseOutput handles replies of the form "C1:OUTP ON,LOAD,HZ".
func parseOutput(st *ChannelStatus, data string) error {
	_, rest, ok := strings.Cut(strings.TrimSpace(data), " ")
	if !ok {
		return errors.New("malformed OUTP reply: " + data)
	}
	parts := strings.Split(rest, ",")
	switch {
	case parts[0] == "ON":
		st.Output = true
	case parts[0] == "OFF":
		st.Output = false
	case strings.HasPrefix(parts[0], "FAULT"):
		st.Fault = rest
		return nil
	default:
		return errors.New("unknown output mode: " + parts[0])
	}
	for i := 1; i+1 < len(parts); i += 2 {
		if parts[i] == "LOAD" {
			st.Load = parts[i+1]
		}
	}
	return nil
}

// parseWave handles replies of the form
// "C1:BSWV WVTP,PULSE,FRQ,1,AMP,5,OFST,0,WIDTH,0.001".
func parseWave(st *ChannelStatus, data string) error {
	_, rest, ok := strings.Cut(strings.TrimSpace(data), " ")
	if !ok {
		return errors.New("malformed BSWV reply: " + data)
	}
	parts := strings.Split(rest, ",")
	var err error
	for i := 0; i+1 < len(parts); i += 2 {
		val := parts[i+1]
		switch parts[i] {
		case "WVTP":
			st.Wave.Shape = pattern.Shape(val)
		case "FRQ":
			st.Wave.Frequency, err = strconv.ParseFloat(val, 64)
		case "AMP":
			st.Wave.Amplitude, err = strconv.ParseFloat(val, 64)
		case "OFST":
			st.Wave.Offset, err = strconv.ParseFloat(val, 64)
		case "WIDTH":
			st.Wave.Width, err = strconv.ParseFloat(val, 64)
		case "DUTY":
			st.Wave.Duty, err = strconv.ParseFloat(val, 64)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

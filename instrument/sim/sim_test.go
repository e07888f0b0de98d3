package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func query(t *testing.T, rw interface {
	Write([]byte) (int, error)
	Read([]byte) (int, error)
}, cmd string) string {
	t.Helper()
	_, err := rw.Write([]byte(cmd + "\n"))
	require.NoError(t, err)
	buf := make([]byte, 256)
	n, err := rw.Read(buf)
	require.NoError(t, err)
	return string(buf[:n])
}

func TestGeneratorOutputRoundTrip(t *testing.T) {
	g := NewGenerator()

	assert.Equal(t, "C1:OUTP OFF,LOAD,HZ\n", query(t, g, "C1:OUTP?"))

	_, err := g.Write([]byte("C1:OUTP ON,LOAD,HZ\n"))
	require.NoError(t, err)
	assert.Equal(t, "C1:OUTP ON,LOAD,HZ\n", query(t, g, "C1:OUTP?"))
	// C2 untouched
	assert.Equal(t, "C2:OUTP OFF,LOAD,HZ\n", query(t, g, "C2:OUTP?"))
}

func TestGeneratorWaveEcho(t *testing.T) {
	g := NewGenerator()
	_, err := g.Write([]byte("C1:BSWV WVTP,PULSE,FRQ,1,AMP,5,OFST,0,WIDTH,0.001\n"))
	require.NoError(t, err)
	assert.Equal(t, "C1:BSWV WVTP,PULSE,FRQ,1,AMP,5,OFST,0,WIDTH,0.001\n", query(t, g, "C1:BSWV?"))
}

func TestMotorRangeCheck(t *testing.T) {
	m := NewMotor(0, 25)
	assert.Equal(t, "ERR:RANGE\n", query(t, m, "MA 26"))
	assert.Equal(t, 0, m.Moves)

	assert.Equal(t, "OK\n", query(t, m, "MA 10"))
	assert.Equal(t, 1, m.Moves)
	assert.Equal(t, "IDLE\n", query(t, m, "STAT?"))
	assert.Equal(t, "10\n", query(t, m, "POS?"))
}

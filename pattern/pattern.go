package pattern

import "time"

// Shape is a waveform shape name as understood by the generator.
type Shape string

const (
	ShapeSine   Shape = "SINE"
	ShapeSquare Shape = "SQUARE"
	ShapePulse  Shape = "PULSE"
	ShapeDC     Shape = "DC"
)

// Point is a position on the sample in stage coordinates (mm).
type Point struct{ X, Y float64 }

func (p Point) Equal(b Point) bool {
	return p.X == b.X && p.Y == b.Y
}

// Add will add the target values to p.
func (p Point) Add(target Point) Point {
	p.X += target.X
	p.Y += target.Y
	return p
}

// Waveform describes one generator output. It is a value object:
// reconfiguration replaces it wholesale.
type Waveform struct {
	Shape     Shape
	Frequency float64 // Hz, ignored for DC
	Amplitude float64 // Vpp
	Offset    float64 // V
	Width     float64 // s, pulse shapes only
	Duty      float64 // percent, square shapes only
}

// Pixel is one discrete write operation on the sample: a motion target
// combined with the waveform pulse held for Dwell.
type Pixel struct {
	Pos   Point
	Wave  Waveform
	Dwell time.Duration
}

// Pattern is an ordered sequence of pixels. Treat it as immutable once
// handed to a sequencer; Clone before modifying.
type Pattern []Pixel

func (p Pattern) Clone() Pattern {
	c := make(Pattern, len(p))
	copy(c, p)
	return c
}

// SquareGrid returns the centers of an n by n grid of square pixels of
// the given side length, all sharing wave and dwell, ordered in a
// lawnmower path from start: even columns walk up in Y, odd columns
// walk back down.
func SquareGrid(start Point, n int, length float64, wave Waveform, dwell time.Duration) Pattern {
	pat := make(Pattern, 0, n*n)
	for i := 0; i < n; i++ {
		x := start.X + (2*float64(i)+1)*length/2
		for j := 0; j < n; j++ {
			k := j
			if i%2 == 1 {
				k = n - 1 - j
			}
			y := start.Y + (2*float64(k)+1)*length/2
			pat = append(pat, Pixel{
				Pos:   Point{X: x, Y: y},
				Wave:  wave,
				Dwell: dwell,
			})
		}
	}
	return pat
}

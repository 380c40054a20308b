package pond

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

const (
	DefaultConsumeRadius = 10.0
	DefaultHungerRelief  = 30.0
)

var ErrInvalidBounds = errors.New("environment bounds must be positive")

type Config struct {
	Width         float64
	Height        float64
	ConsumeRadius float64
	HungerRelief  float64
}

// LilyPad is a single-use food source.
type LilyPad struct {
	ID       int
	Position orb.Point
}

// Forager is anything that can eat a lily pad.
type Forager interface {
	Location() orb.Point
	Feed(relief float64)
}

// Environment owns the lily pad field for one trial at a time. It is not
// safe for concurrent use; the evaluator drives it from a single goroutine.
type Environment struct {
	bound         orb.Bound
	rng           *rand.Rand
	pads          []LilyPad
	nextID        int
	consumeRadius float64
	relief        float64
}

func NewEnvironment(cfg Config, rng *rand.Rand) (*Environment, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: %gx%g", ErrInvalidBounds, cfg.Width, cfg.Height)
	}
	if rng == nil {
		return nil, errors.New("random source is required")
	}
	if cfg.ConsumeRadius <= 0 {
		cfg.ConsumeRadius = DefaultConsumeRadius
	}
	if cfg.HungerRelief <= 0 {
		cfg.HungerRelief = DefaultHungerRelief
	}
	return &Environment{
		bound:         orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{cfg.Width, cfg.Height}},
		rng:           rng,
		consumeRadius: cfg.ConsumeRadius,
		relief:        cfg.HungerRelief,
	}, nil
}

func (e *Environment) Bound() orb.Bound { return e.bound }
func (e *Environment) Width() float64   { return e.bound.Max.X() }
func (e *Environment) Height() float64  { return e.bound.Max.Y() }

// Spawn replaces the pad list with count pads at uniform random integer
// coordinates in [0,width]x[0,height].
func (e *Environment) Spawn(count int) {
	if count < 0 {
		count = 0
	}
	e.pads = make([]LilyPad, 0, count)
	for i := 0; i < count; i++ {
		x := float64(e.rng.Intn(int(e.Width()) + 1))
		y := float64(e.rng.Intn(int(e.Height()) + 1))
		e.AddLilyPad(orb.Point{x, y})
	}
}

// AddLilyPad places one pad and returns its id.
func (e *Environment) AddLilyPad(p orb.Point) int {
	e.nextID++
	e.pads = append(e.pads, LilyPad{ID: e.nextID, Position: p})
	return e.nextID
}

// LilyPads returns a copy of the pads still present.
func (e *Environment) LilyPads() []LilyPad {
	return append([]LilyPad(nil), e.pads...)
}

func (e *Environment) PadCount() int { return len(e.pads) }

// PadsWithin returns the pads strictly within radius of p, in pad order.
func (e *Environment) PadsWithin(p orb.Point, radius float64) []LilyPad {
	out := make([]LilyPad, 0)
	for _, pad := range e.pads {
		if planar.Distance(p, pad.Position) < radius {
			out = append(out, pad)
		}
	}
	return out
}

// SpawnPoint draws an integer point at least margin away from every edge.
// When the field is narrower than two margins the centre line is used.
func (e *Environment) SpawnPoint(margin float64) orb.Point {
	return orb.Point{
		e.spawnCoord(e.Width(), margin),
		e.spawnCoord(e.Height(), margin),
	}
}

func (e *Environment) spawnCoord(extent, margin float64) float64 {
	lo := int(margin)
	hi := int(extent - margin)
	if hi < lo {
		return float64(int(extent / 2))
	}
	return float64(lo + e.rng.Intn(hi-lo+1))
}

// Clamp returns p moved inside the environment bounds.
func (e *Environment) Clamp(p orb.Point) orb.Point {
	if e.bound.Contains(p) {
		return p
	}
	return orb.Point{
		clamp(p.X(), e.bound.Min.X(), e.bound.Max.X()),
		clamp(p.Y(), e.bound.Min.Y(), e.bound.Max.Y()),
	}
}

// ConsumeCheck feeds f once for every pad strictly within the consume radius
// and removes those pads. Callers that check several foragers in one step
// must do so in a fixed order: the first forager checked wins a shared pad.
func (e *Environment) ConsumeCheck(f Forager) int {
	snapshot := e.LilyPads()
	eaten := make(map[int]struct{})
	for _, pad := range snapshot {
		if planar.Distance(f.Location(), pad.Position) < e.consumeRadius {
			f.Feed(e.relief)
			eaten[pad.ID] = struct{}{}
		}
	}
	if len(eaten) == 0 {
		return 0
	}
	kept := e.pads[:0]
	for _, pad := range e.pads {
		if _, gone := eaten[pad.ID]; !gone {
			kept = append(kept, pad)
		}
	}
	e.pads = kept
	return len(eaten)
}

// EdgeDistance is the shortest distance from p to any boundary edge.
func (e *Environment) EdgeDistance(p orb.Point) float64 {
	d := p.X() - e.bound.Min.X()
	for _, v := range []float64{e.bound.Max.X() - p.X(), p.Y() - e.bound.Min.Y(), e.bound.Max.Y() - p.Y()} {
		if v < d {
			d = v
		}
	}
	return d
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

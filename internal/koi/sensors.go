package koi

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"koipond/internal/pond"
)

// Inputs builds the sensory vector. Its layout is the controller contract:
//
//	0      hunger / death hunger
//	1-2    x / width, y / height
//	3-5    nearest pad: distance / detection radius, unit direction
//	6-8    nearest koi: distance / detection radius, unit direction
//	9      koi within the schooling radius / 10
//	10     nearest edge as a fraction of the field
//	11-12  same-species and other-species koi / 10
//	13-16  pads to the left, right, up and down / busiest quadrant
//	17     energy / 100
//	18     steps taken / 1000, capped at 1
//	19     food consumed / 20, capped at 1
//
// With nothing in range the nearest-object features read (1, 0, 0).
func (k *Koi) Inputs(pads []pond.LilyPad, neighbors []*Koi) []float64 {
	p := k.params
	in := make([]float64, 0, InputWidth)

	in = append(in, k.hunger/p.DeathHunger)
	in = append(in, k.position[0]/p.Width, k.position[1]/p.Height)

	padDist, padDir := p.DetectionRadius, orb.Point{}
	if pad, ok := nearestPad(k.position, pads); ok {
		padDist, padDir = k.distanceAndDirection(pad.Position)
	}
	in = append(in, padDist/p.DetectionRadius, padDir[0], padDir[1])

	koiDist, koiDir := p.DetectionRadius, orb.Point{}
	if other := k.nearestNeighbor(neighbors); other != nil {
		koiDist, koiDir = k.distanceAndDirection(other.position)
	}
	in = append(in, koiDist/p.DetectionRadius, koiDir[0], koiDir[1])

	schooling := 0
	same, different := 0, 0
	for _, other := range neighbors {
		if planar.Distance(k.position, other.position) < SchoolingRadius {
			schooling++
		}
		if other.speciesID == k.speciesID {
			same++
		} else {
			different++
		}
	}
	in = append(in, float64(schooling)/10)

	x, y := k.position[0], k.position[1]
	edge := math.Min(math.Min(x/p.Width, (p.Width-x)/p.Width), math.Min(y/p.Height, (p.Height-y)/p.Height))
	in = append(in, edge)

	in = append(in, float64(same)/10, float64(different)/10)

	quadrants := padQuadrants(k.position, pads)
	busiest := 0
	for _, n := range quadrants {
		if n > busiest {
			busiest = n
		}
	}
	for _, n := range quadrants {
		if busiest == 0 {
			in = append(in, 0)
			continue
		}
		in = append(in, float64(n)/float64(busiest))
	}

	in = append(in,
		k.energy/100,
		math.Min(float64(k.stepsTaken)/stepsCap, 1),
		math.Min(float64(k.foodConsumed)/foodCap, 1),
	)
	return in
}

func (k *Koi) distanceAndDirection(target orb.Point) (float64, orb.Point) {
	d := planar.Distance(k.position, target)
	if d == 0 {
		return 0, orb.Point{}
	}
	return d, orb.Point{(target[0] - k.position[0]) / d, (target[1] - k.position[1]) / d}
}

// nearestNeighbor returns the closest other koi, first in slice order on ties.
func (k *Koi) nearestNeighbor(neighbors []*Koi) *Koi {
	var best *Koi
	bestDist := math.Inf(1)
	for _, other := range neighbors {
		if other == k {
			continue
		}
		if d := planar.Distance(k.position, other.position); d < bestDist {
			best, bestDist = other, d
		}
	}
	return best
}

// schoolCentroid is the mean position of same-species neighbors inside the
// schooling radius.
func (k *Koi) schoolCentroid(neighbors []*Koi) (orb.Point, bool) {
	school := make(orb.MultiPoint, 0, len(neighbors))
	for _, other := range neighbors {
		if other == k || other.speciesID != k.speciesID {
			continue
		}
		if planar.Distance(k.position, other.position) < SchoolingRadius {
			school = append(school, other.position)
		}
	}
	if len(school) == 0 {
		return orb.Point{}, false
	}
	var sum orb.Point
	for _, p := range school {
		sum[0] += p[0]
		sum[1] += p[1]
	}
	n := float64(len(school))
	return orb.Point{sum[0] / n, sum[1] / n}, true
}

func nearestPad(from orb.Point, pads []pond.LilyPad) (pond.LilyPad, bool) {
	var best pond.LilyPad
	bestDist := math.Inf(1)
	found := false
	for _, pad := range pads {
		if d := planar.Distance(from, pad.Position); d < bestDist {
			best, bestDist, found = pad, d, true
		}
	}
	return best, found
}

// padQuadrants counts pads left, right, up and down of from. A pad off both
// axes counts in two quadrants.
func padQuadrants(from orb.Point, pads []pond.LilyPad) [4]int {
	var q [4]int
	for _, pad := range pads {
		dx := pad.Position[0] - from[0]
		dy := pad.Position[1] - from[1]
		if dx < 0 {
			q[0]++
		} else if dx > 0 {
			q[1]++
		}
		if dy < 0 {
			q[2]++
		} else if dy > 0 {
			q[3]++
		}
	}
	return q
}

// Package geometry provides the molecular geometry and gradient value types
// shared by the optimization core and the potential evaluators.
package geometry

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Geometry is a snapshot of atomic positions at one optimization step.
// Coordinates are stored flattened as [x0, y0, z0, x1, y1, z1, ...] in the
// same units the potential evaluator works in. A Geometry is treated as
// immutable once constructed; stepping produces a new Geometry via Displace.
type Geometry struct {
	// Symbols holds the element symbol for each atom, in order.
	Symbols []string
	// Coords holds the flattened 3N cartesian coordinates.
	Coords []float64
}

// New creates a Geometry from element symbols and flattened coordinates.
func New(symbols []string, coords []float64) (*Geometry, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("geometry has no atoms")
	}
	if len(coords) != 3*len(symbols) {
		return nil, fmt.Errorf("expected %d coordinates for %d atoms, got %d",
			3*len(symbols), len(symbols), len(coords))
	}
	for i, v := range coords {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("coordinate %d is not finite: %v", i, v)
		}
	}
	return &Geometry{
		Symbols: append([]string(nil), symbols...),
		Coords:  append([]float64(nil), coords...),
	}, nil
}

// NAtoms returns the number of atoms.
func (g *Geometry) NAtoms() int {
	return len(g.Symbols)
}

// Clone returns a deep copy of the geometry.
func (g *Geometry) Clone() *Geometry {
	return &Geometry{
		Symbols: append([]string(nil), g.Symbols...),
		Coords:  append([]float64(nil), g.Coords...),
	}
}

// Displace returns a new Geometry with delta added to the coordinates.
// The atom identities are shared semantics but copied storage.
func (g *Geometry) Displace(delta []float64) (*Geometry, error) {
	if len(delta) != len(g.Coords) {
		return nil, fmt.Errorf("displacement length %d does not match %d coordinates",
			len(delta), len(g.Coords))
	}
	coords := append([]float64(nil), g.Coords...)
	floats.Add(coords, delta)
	return New(g.Symbols, coords)
}

// SameShape reports whether other has the same atom count and ordering.
func (g *Geometry) SameShape(other *Geometry) bool {
	if other == nil || len(g.Symbols) != len(other.Symbols) {
		return false
	}
	for i, s := range g.Symbols {
		if other.Symbols[i] != s {
			return false
		}
	}
	return true
}

// Displacement returns the per-coordinate difference g - prev.
func Displacement(g, prev *Geometry) ([]float64, error) {
	if !g.SameShape(prev) {
		return nil, fmt.Errorf("geometries have mismatched atoms")
	}
	d := make([]float64, len(g.Coords))
	floats.SubTo(d, g.Coords, prev.Coords)
	return d, nil
}

// MaxAbs returns the largest absolute component of v, or 0 for an empty slice.
func MaxAbs(v []float64) float64 {
	max := 0.0
	for _, x := range v {
		if a := math.Abs(x); a > max {
			max = a
		}
	}
	return max
}

// RMS returns the root-mean-square of the components of v.
func RMS(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	return floats.Norm(v, 2) / math.Sqrt(float64(len(v)))
}

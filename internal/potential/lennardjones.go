package potential

import (
	"context"
	"math"

	"github.com/molforge/RELAX/internal/geometry"
)

// ljParams holds the well depth and collision diameter for one element.
type ljParams struct {
	epsilon float64
	sigma   float64
}

// Rough UFF-style parameters, energies in kcal/mol, lengths in angstrom.
// Unlisted elements fall back to the carbon values.
var ljTable = map[string]ljParams{
	"H":  {epsilon: 0.044, sigma: 2.57},
	"C":  {epsilon: 0.105, sigma: 3.43},
	"N":  {epsilon: 0.069, sigma: 3.26},
	"O":  {epsilon: 0.060, sigma: 3.12},
	"Ar": {epsilon: 0.185, sigma: 3.45},
	"Ne": {epsilon: 0.042, sigma: 3.24},
}

// minSeparation guards the 1/r singularity. Two atoms closer than this make
// the evaluation fail rather than return a huge, meaningless gradient.
const minSeparation = 1e-3

// LennardJones is a pairwise 12-6 potential evaluator. It is cheap and
// analytic, which makes it the default evaluator for the service and a
// convenient real potential for tests; production hosts plug in their own
// Evaluator.
type LennardJones struct{}

// NewLennardJones creates a Lennard-Jones evaluator.
func NewLennardJones() *LennardJones {
	return &LennardJones{}
}

// Evaluate implements Evaluator. Mixing uses Lorentz-Berthelot rules.
func (lj *LennardJones) Evaluate(ctx context.Context, g *geometry.Geometry) (float64, []float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}

	n := g.NAtoms()
	energy := 0.0
	gradient := make([]float64, 3*n)

	for i := 0; i < n; i++ {
		pi := lookup(g.Symbols[i])
		for j := i + 1; j < n; j++ {
			pj := lookup(g.Symbols[j])
			eps := math.Sqrt(pi.epsilon * pj.epsilon)
			sig := 0.5 * (pi.sigma + pj.sigma)

			var d [3]float64
			r2 := 0.0
			for k := 0; k < 3; k++ {
				d[k] = g.Coords[3*i+k] - g.Coords[3*j+k]
				r2 += d[k] * d[k]
			}
			r := math.Sqrt(r2)
			if r < minSeparation {
				return 0, nil, Errorf("atoms %d and %d overlap (r=%.2e)", i, j, r)
			}

			sr6 := math.Pow(sig/r, 6)
			sr12 := sr6 * sr6
			energy += 4 * eps * (sr12 - sr6)

			// dE/dr times 1/r, applied along the pair vector.
			dEdrOverR := 4 * eps * (-12*sr12 + 6*sr6) / r2
			for k := 0; k < 3; k++ {
				f := dEdrOverR * d[k]
				gradient[3*i+k] += f
				gradient[3*j+k] -= f
			}
		}
	}

	return energy, gradient, nil
}

func lookup(symbol string) ljParams {
	if p, ok := ljTable[symbol]; ok {
		return p
	}
	return ljTable["C"]
}

package optimize

// Named convergence presets matching the tables used across quantum-chemistry
// optimizers. Forces are in Hartree/bohr, displacements in bohr and energies
// in Hartree. A zero field leaves that metric without a vote, which is how
// several of the upstream programs define their criteria.
var presets = map[string]Criteria{
	"QCHEM": {
		MaxForce:        3.0e-4,
		MaxDisplacement: 1.2e-3,
		EnergyChange:    1.0e-6,
	},
	"MOLPRO": {
		MaxForce:        3.0e-4,
		MaxDisplacement: 3.0e-4,
		EnergyChange:    1.0e-6,
	},
	"GAU": {
		MaxForce:        4.5e-4,
		RMSForce:        3.0e-4,
		MaxDisplacement: 1.8e-3,
		RMSDisplacement: 1.2e-3,
	},
	"GAU_LOOSE": {
		MaxForce:        2.5e-3,
		RMSForce:        1.7e-3,
		MaxDisplacement: 1.0e-2,
		RMSDisplacement: 6.7e-3,
	},
	"GAU_TIGHT": {
		MaxForce:        1.5e-5,
		RMSForce:        1.0e-5,
		MaxDisplacement: 6.0e-5,
		RMSDisplacement: 4.0e-5,
	},
	"GAU_VERYTIGHT": {
		MaxForce:        2.0e-6,
		RMSForce:        1.0e-6,
		MaxDisplacement: 6.0e-6,
		RMSDisplacement: 4.0e-6,
	},
	"TURBOMOLE": {
		MaxForce:        1.0e-3,
		RMSForce:        5.0e-4,
		MaxDisplacement: 1.0e-3,
		RMSDisplacement: 5.0e-4,
		EnergyChange:    1.0e-6,
	},
	"CFOUR": {
		RMSForce: 1.0e-4,
	},
	"NWCHEM_LOOSE": {
		MaxForce:        4.5e-3,
		RMSForce:        3.0e-3,
		MaxDisplacement: 5.4e-3,
		RMSDisplacement: 3.6e-3,
	},
}

// Preset returns the named convergence preset.
func Preset(name string) (Criteria, bool) {
	c, ok := presets[name]
	return c, ok
}

// PresetNames returns the available preset names.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	return names
}

// DefaultCriteria returns the fully-populated default criteria for a target,
// to be overridden field-by-field by host input. Minimizations use the QCHEM
// preset. Transition-state searches are numerically harder: the defaults
// tighten the force tolerances and loosen the displacement ones, since steps
// near a saddle point are long while the gradient must still vanish.
func DefaultCriteria(target Target) Criteria {
	if target == TargetTransitionState {
		return Criteria{
			MaxForce:        1.5e-4,
			RMSForce:        1.0e-4,
			MaxDisplacement: 2.4e-3,
			RMSDisplacement: 1.6e-3,
			EnergyChange:    1.0e-6,
		}
	}
	return presets["QCHEM"]
}

// DefaultMaxIterations scales the iteration budget with system size, giving a
// reasonable limit in most cases.
func DefaultMaxIterations(natoms int) int {
	n := 30 + 6*natoms
	if n > 200 {
		return 200
	}
	return n
}

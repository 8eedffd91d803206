package optimize

// Property is one published value. NotApplicable marks properties that never
// became active during the run (e.g. energy_change on a single-iteration
// convergence); they are published rather than omitted so consumers see a
// stable schema.
type Property struct {
	Value         interface{} `json:"value"`
	NotApplicable bool        `json:"not_applicable,omitempty"`
}

// PropertyBag is the uniform named-property set published to the host's
// results store, identical in shape for every backend.
type PropertyBag map[string]Property

// Aggregate maps a session result into the host's property convention. Every
// convergence metric appears under its own key regardless of whether it was
// configured or computed; the verdict, termination reason and iteration count
// are always present. Pure transformation, no side effects.
func Aggregate(res *SessionResult) PropertyBag {
	bag := PropertyBag{
		"converged":          {Value: res.Converged},
		"termination_reason": {Value: res.Reason.String()},
		"n_iterations":       {Value: res.NIterations},
	}

	if res.Final != nil {
		bag["energy"] = Property{Value: res.Final.Energy}
		bag["final_geometry"] = Property{Value: map[string]interface{}{
			"symbols":     res.Final.Geometry.Symbols,
			"coordinates": res.Final.Geometry.Coords,
		}}
		for _, m := range Metrics {
			r := res.Final.Metrics[m]
			bag[string(m)] = Property{Value: r.Value, NotApplicable: !r.Applicable}
		}
	} else {
		// The first evaluation failed: the schema is still published, with
		// every computed property marked not applicable.
		bag["energy"] = Property{NotApplicable: true}
		bag["final_geometry"] = Property{NotApplicable: true}
		for _, m := range Metrics {
			bag[string(m)] = Property{NotApplicable: true}
		}
	}

	if res.Err != nil {
		bag["error"] = Property{Value: res.Err.Error()}
	}
	return bag
}

package config

import "fmt"

// Validate enforces the semantic manifest invariants that the structural
// schema pass cannot express.
func (f *Fleet) Validate() error {
	if f.Version == "" {
		return fmt.Errorf("version is required")
	}
	if f.Fleet.Name == "" {
		return fmt.Errorf("fleet.name is required")
	}
	if len(f.Processes) == 0 {
		return fmt.Errorf("at least one process must be defined")
	}
	if f.Defaults.Grace.IsSet() && f.Defaults.Grace.Duration <= 0 {
		return fmt.Errorf("defaults.grace must be positive")
	}
	if f.Release != nil && f.Release.Env == "" {
		return fmt.Errorf("release.env is required when a release block is present")
	}

	seen := make(map[string]struct{}, len(f.Processes))
	for i, spec := range f.Processes {
		if spec.Label == "" {
			return fmt.Errorf("process %d missing label", i)
		}
		if _, dup := seen[spec.Label]; dup {
			return fmt.Errorf("process %s defined more than once", spec.Label)
		}
		seen[spec.Label] = struct{}{}
		if len(spec.Command) == 0 {
			return fmt.Errorf("process %s missing command", spec.Label)
		}
		if spec.Command[0] == "" {
			return fmt.Errorf("process %s has an empty command", spec.Label)
		}
	}
	return nil
}

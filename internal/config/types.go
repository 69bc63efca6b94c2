package config

import (
	"fmt"
	"time"
)

// Duration wraps time.Duration for YAML unmarshalling.
type Duration struct {
	time.Duration
	explicit bool
}

// UnmarshalText parses a textual duration, accepting empty strings.
func (d *Duration) UnmarshalText(text []byte) error {
	d.explicit = true
	if len(text) == 0 {
		d.Duration = 0
		return nil
	}
	dur, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = dur
	return nil
}

// MarshalText renders the duration using time.Duration formatting.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// IsSet reports whether the duration was explicitly provided or non-zero.
func (d Duration) IsSet() bool {
	return d.explicit || d.Duration != 0
}

// Fleet mirrors the fleet.yaml document structure.
type Fleet struct {
	Version   string         `yaml:"version"`
	Fleet     FleetMeta      `yaml:"fleet"`
	Defaults  Defaults       `yaml:"defaults"`
	Release   *ReleaseSpec   `yaml:"release"`
	Processes []*ProcessSpec `yaml:"processes"`
}

// FleetMeta contains metadata about the fleet document.
type FleetMeta struct {
	Name    string `yaml:"name"`
	Workdir string `yaml:"workdir"`
}

// Defaults captures policies applied to every process in the fleet.
type Defaults struct {
	// Grace bounds how long shutdown waits after the termination signal
	// before escalating to a forced kill.
	Grace Duration `yaml:"grace"`

	// FailFast requests teardown of the whole fleet when any child exits
	// on its own.
	FailFast bool `yaml:"failFast"`
}

// ReleaseSpec names the environment variable forwarded to every child when
// the fleet is launched in release mode.
type ReleaseSpec struct {
	Env   string `yaml:"env"`
	Value string `yaml:"value"`
}

// Clone creates a copy of the release override.
func (r *ReleaseSpec) Clone() *ReleaseSpec {
	if r == nil {
		return nil
	}
	cp := *r
	return &cp
}

// ProcessSpec describes a single child process to launch. Specs are treated
// as immutable once the fleet document has been loaded.
type ProcessSpec struct {
	Label       string            `yaml:"label"`
	Command     []string          `yaml:"command"`
	Env         map[string]string `yaml:"env"`
	EnvFromFile string            `yaml:"envFromFile"`
	Workdir     string            `yaml:"workdir"`

	// ResolvedWorkdir is the absolute working directory derived from the
	// fleet document location. Populated by the loader.
	ResolvedWorkdir string `yaml:"-"`
}

// Clone creates a deep copy of the process spec.
func (p *ProcessSpec) Clone() *ProcessSpec {
	if p == nil {
		return nil
	}
	cp := &ProcessSpec{
		Label:           p.Label,
		EnvFromFile:     p.EnvFromFile,
		Workdir:         p.Workdir,
		ResolvedWorkdir: p.ResolvedWorkdir,
	}
	if len(p.Command) > 0 {
		cp.Command = append([]string(nil), p.Command...)
	}
	if len(p.Env) > 0 {
		cp.Env = make(map[string]string, len(p.Env))
		for k, v := range p.Env {
			cp.Env[k] = v
		}
	}
	return cp
}

// CloneProcesses deep-copies an ordered process list.
func CloneProcesses(specs []*ProcessSpec) []*ProcessSpec {
	if specs == nil {
		return nil
	}
	dup := make([]*ProcessSpec, 0, len(specs))
	for _, spec := range specs {
		dup = append(dup, spec.Clone())
	}
	return dup
}

// Labels returns the process labels in launch order.
func (f *Fleet) Labels() []string {
	labels := make([]string, 0, len(f.Processes))
	for _, spec := range f.Processes {
		labels = append(labels, spec.Label)
	}
	return labels
}

// ApplyDefaults fills in unset per-process values from the fleet defaults.
func (f *Fleet) ApplyDefaults() error {
	for i, spec := range f.Processes {
		if spec == nil {
			return fmt.Errorf("process %d is null", i)
		}
	}
	if !f.Defaults.Grace.IsSet() {
		f.Defaults.Grace = Duration{Duration: 5 * time.Second}
	}
	return nil
}

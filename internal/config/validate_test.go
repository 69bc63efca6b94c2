package config

import (
	"strings"
	"testing"
	"time"
)

func validFleet() *Fleet {
	return &Fleet{
		Version: "1",
		Fleet:   FleetMeta{Name: "dev"},
		Defaults: Defaults{
			Grace: Duration{Duration: 5 * time.Second},
		},
		Processes: []*ProcessSpec{
			{Label: "api", Command: []string{"./api"}},
			{Label: "web", Command: []string{"./web"}},
		},
	}
}

func TestValidateAcceptsValidFleet(t *testing.T) {
	if err := validFleet().Validate(); err != nil {
		t.Fatalf("expected valid fleet, got %v", err)
	}
}

func TestValidateRejectsInvalidFleets(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Fleet)
		wantErr string
	}{
		{
			name:    "missing version",
			mutate:  func(f *Fleet) { f.Version = "" },
			wantErr: "version is required",
		},
		{
			name:    "missing fleet name",
			mutate:  func(f *Fleet) { f.Fleet.Name = "" },
			wantErr: "fleet.name is required",
		},
		{
			name:    "no processes",
			mutate:  func(f *Fleet) { f.Processes = nil },
			wantErr: "at least one process",
		},
		{
			name:    "missing label",
			mutate:  func(f *Fleet) { f.Processes[1].Label = "" },
			wantErr: "missing label",
		},
		{
			name: "duplicate label",
			mutate: func(f *Fleet) {
				f.Processes[1].Label = f.Processes[0].Label
			},
			wantErr: "defined more than once",
		},
		{
			name:    "missing command",
			mutate:  func(f *Fleet) { f.Processes[0].Command = nil },
			wantErr: "missing command",
		},
		{
			name:    "empty command",
			mutate:  func(f *Fleet) { f.Processes[0].Command = []string{""} },
			wantErr: "empty command",
		},
		{
			name: "negative grace",
			mutate: func(f *Fleet) {
				f.Defaults.Grace = Duration{Duration: -time.Second, explicit: true}
			},
			wantErr: "grace must be positive",
		},
		{
			name:    "release without env",
			mutate:  func(f *Fleet) { f.Release = &ReleaseSpec{Value: "--release"} },
			wantErr: "release.env is required",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fleet := validFleet()
			tc.mutate(fleet)
			err := fleet.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

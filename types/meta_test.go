package types //nolint:revive // types is a valid package name

import (
	"testing"
)

func TestStreamMeta_Validate(t *testing.T) {
	tests := []struct {
		name    string
		meta    StreamMeta
		wantErr bool
	}{
		{
			name:    "empty run_id",
			meta:    StreamMeta{SatelliteID: "98"},
			wantErr: true,
		},
		{
			name:    "empty satellite_id",
			meta:    StreamMeta{RunID: "run-001"},
			wantErr: true,
		},
		{
			name:    "negative index",
			meta:    StreamMeta{RunID: "run-001", SatelliteID: "98", Index: -1},
			wantErr: true,
		},
		{
			name:    "valid without plan",
			meta:    StreamMeta{RunID: "run-001", SatelliteID: "98"},
			wantErr: false,
		},
		{
			name:    "valid with plan",
			meta:    StreamMeta{RunID: "run-001", SatelliteID: "98", PlanID: "p-1", Index: 3},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.meta.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestStreamMeta_CheckpointKey(t *testing.T) {
	tests := []struct {
		name string
		meta StreamMeta
		want string
	}{
		{"no plan", StreamMeta{SatelliteID: "98", Index: 2}, "98,,2"},
		{"with plan", StreamMeta{SatelliteID: "98", PlanID: "plan-7", Index: 2}, "98,plan-7,2"},
		{"slash in plan", StreamMeta{SatelliteID: "98", PlanID: "a/b", Index: 0}, "98,a%2Fb,0"},
		{"comma in satellite", StreamMeta{SatelliteID: "9,8", Index: 0}, "9%2C8,,0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.meta.CheckpointKey(); got != tt.want {
				t.Errorf("CheckpointKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStreamMeta_CheckpointKeyIsUnambiguous(t *testing.T) {
	a := StreamMeta{SatelliteID: "a-b", Index: 0}
	b := StreamMeta{SatelliteID: "a", PlanID: "b", Index: 0}
	if a.CheckpointKey() == b.CheckpointKey() {
		t.Errorf("distinct streams share key %q", a.CheckpointKey())
	}

	c := StreamMeta{SatelliteID: "a,", PlanID: "b", Index: 0}
	d := StreamMeta{SatelliteID: "a", PlanID: ",b", Index: 0}
	if c.CheckpointKey() == d.CheckpointKey() {
		t.Errorf("distinct streams share key %q", c.CheckpointKey())
	}
}

func TestStreamOutcomeFor(t *testing.T) {
	tests := []struct {
		in   AttemptOutcome
		want StreamOutcome
	}{
		{AttemptCompleted, StreamCompleted},
		{AttemptClosed, StreamClosed},
		{AttemptCancelled, StreamCancelled},
		{AttemptErrored, StreamFailed},
		{AttemptOutcome("bogus"), StreamFailed},
	}

	for _, tt := range tests {
		if got := StreamOutcomeFor(tt.in); got != tt.want {
			t.Errorf("StreamOutcomeFor(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	if !StreamFailed.IsFailure() {
		t.Error("failed outcome should be a failure")
	}
	if StreamClosed.IsFailure() || StreamCancelled.IsFailure() || StreamCompleted.IsFailure() {
		t.Error("only failed outcome should be a failure")
	}
}

package sim

import (
	"testing"
	"time"
)

func TestRateTable(t *testing.T) {
	rt := NewRateTable()

	if got := rt.SampleRate(StreamPrimary); got != DefaultSampleInterval {
		t.Errorf("default primary rate = %v, want %v", got, DefaultSampleInterval)
	}

	rt.SetSampleRate(StreamLanding, LandingBoostInterval)
	if got := rt.SampleRate(StreamLanding); got != 25*time.Millisecond {
		t.Errorf("landing rate = %v, want 25ms", got)
	}

	// Unknown stream falls back to default
	if got := rt.SampleRate(Stream("bogus")); got != DefaultSampleInterval {
		t.Errorf("unknown stream rate = %v, want default", got)
	}
}

func TestPairValidity(t *testing.T) {
	old := &PrimaryTelemetry{}
	niu := &PrimaryTelemetry{}

	tests := []struct {
		name     string
		pair     Pair[PrimaryTelemetry]
		valid    bool
		sentinel bool
	}{
		{"BothSet", Pair[PrimaryTelemetry]{Old: old, New: niu}, true, false},
		{"BothNil", Pair[PrimaryTelemetry]{}, false, true},
		{"OldNil", Pair[PrimaryTelemetry]{New: niu}, false, false},
		{"NewNil", Pair[PrimaryTelemetry]{Old: old}, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.pair.Valid(); got != tt.valid {
				t.Errorf("Valid() = %v, want %v", got, tt.valid)
			}
			if got := tt.pair.Sentinel(); got != tt.sentinel {
				t.Errorf("Sentinel() = %v, want %v", got, tt.sentinel)
			}
		})
	}
}

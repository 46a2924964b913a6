package cache

import (
	"testing"

	"roadmatch/internal/match"
)

func TestFingerprintIsDeterministic(t *testing.T) {
	samples := []match.Sample{
		{X: 1, Y: 2, Timestamp: 100},
		{X: 3, Y: 4, Timestamp: 101},
	}
	a := Fingerprint("berlin", samples)
	b := Fingerprint("berlin", samples)
	if a != b {
		t.Fatalf("expected deterministic fingerprint, got %q and %q", a, b)
	}
}

func TestFingerprintDiffersByNetwork(t *testing.T) {
	samples := []match.Sample{{X: 1, Y: 2, Timestamp: 100}}
	if Fingerprint("berlin", samples) == Fingerprint("hamburg", samples) {
		t.Fatal("expected different networks to produce different fingerprints for the same samples")
	}
}

func TestFingerprintDiffersBySamples(t *testing.T) {
	a := []match.Sample{{X: 1, Y: 2, Timestamp: 100}}
	b := []match.Sample{{X: 1, Y: 2, Timestamp: 200}}
	if Fingerprint("berlin", a) == Fingerprint("berlin", b) {
		t.Fatal("expected different sample sequences to produce different fingerprints")
	}
}

func TestLoadConfigFromEnvDefaults(t *testing.T) {
	c := LoadConfigFromEnv()
	if c.Host == "" {
		t.Fatal("expected a default host")
	}
	if c.Port == 0 {
		t.Fatal("expected a default port")
	}
}

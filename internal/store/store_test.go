package store

import (
	"strings"
	"testing"
)

func TestLoadConfigFromEnvDefaults(t *testing.T) {
	c := LoadConfigFromEnv()
	if c.Database == "" {
		t.Fatal("expected a default database name")
	}
	if c.MaxConns <= c.MinConns {
		t.Fatalf("expected MaxConns > MinConns by default, got %d <= %d", c.MaxConns, c.MinConns)
	}
}

func TestSchemaDeclaresExpectedTables(t *testing.T) {
	for _, table := range []string{"match_run", "point_match", "route_match"} {
		if !strings.Contains(Schema, table) {
			t.Fatalf("expected Schema to declare table %q", table)
		}
	}
}

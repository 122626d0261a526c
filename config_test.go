package hopdb

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "filter_pushdown: false\nmax_result_rows: 1000\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.FilterPushdown {
		t.Fatal("expected filter_pushdown disabled")
	}
	if cfg.MaxResultRows != 1000 {
		t.Fatalf("expected 1000, got %d", cfg.MaxResultRows)
	}
	// Omitted keys keep their defaults.
	if cfg.WorkerPoolSize != DefaultConfig().WorkerPoolSize {
		t.Fatalf("expected default pool size, got %d", cfg.WorkerPoolSize)
	}
}

func TestSchemaConfig_BuildRegistry(t *testing.T) {
	sc := &SchemaConfig{Spaces: []SpaceConfig{{
		ID:   1,
		Name: "social",
		Tags: []TagConfig{{
			ID: 1, Name: "person",
			Fields: []FieldConfig{{Name: "name", Type: "string"}, {Name: "age", Type: "int"}},
		}},
		Edges: []EdgeConfig{{
			Type: 1, Name: "follow",
			Fields: []FieldConfig{{Name: "degree", Type: "int"}},
		}},
	}}}

	reg, err := sc.BuildRegistry()
	if err != nil {
		t.Fatal(err)
	}
	id, err := reg.ToTagID(1, "person")
	if err != nil || id != 1 {
		t.Fatalf("expected tag id 1, got %d (%v)", id, err)
	}
	et, err := reg.ToEdgeType(1, "follow")
	if err != nil || et != 1 {
		t.Fatalf("expected edge type 1, got %d (%v)", et, err)
	}
	schema, err := reg.GetEdgeSchema(1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if schema.FieldType("degree") != TypeInt {
		t.Fatal("expected int degree field")
	}

	bad := &SchemaConfig{Spaces: []SpaceConfig{{
		ID:    1,
		Edges: []EdgeConfig{{Type: -1, Name: "oops"}},
	}}}
	if _, err := bad.BuildRegistry(); err == nil {
		t.Fatal("expected error for non-positive edge type")
	}
}

package hopdb

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config carries the feature flags and limits threaded through the
// execution context. There is no process-wide mutable flag state; every
// query reads the config it was created with.
type Config struct {
	// FilterPushdown enables serializing the WHERE filter to storage on
	// the final hop of a forward traversal.
	FilterPushdown bool `yaml:"filter_pushdown"`
	// Trace enables verbose per-hop latency logging and the trace ring
	// buffer.
	Trace bool `yaml:"trace_go"`
	// MaxResultRows caps the rows a single query may emit. 0 = unlimited.
	MaxResultRows int `yaml:"max_result_rows"`
	// WorkerPoolSize is the number of runner goroutines shared by all
	// queries.
	WorkerPoolSize int `yaml:"worker_pool_size"`
	// TraceLogCapacity bounds the trace ring buffer.
	TraceLogCapacity int `yaml:"trace_log_capacity"`
}

// DefaultConfig returns the default flags.
func DefaultConfig() Config {
	return Config{
		FilterPushdown:   true,
		Trace:            false,
		MaxResultRows:    0,
		WorkerPoolSize:   8,
		TraceLogCapacity: 128,
	}
}

// LoadConfig reads a YAML config file over the defaults, so omitted keys
// keep their default values.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("hopdb: read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("hopdb: parse config: %w", err)
	}
	return cfg, nil
}

// SchemaConfig describes the schemas a daemon bootstraps into its
// registry at startup.
type SchemaConfig struct {
	Spaces []SpaceConfig `yaml:"spaces"`
}

// SpaceConfig is one graph space's tags and edges.
type SpaceConfig struct {
	ID    int32        `yaml:"id"`
	Name  string       `yaml:"name"`
	Tags  []TagConfig  `yaml:"tags"`
	Edges []EdgeConfig `yaml:"edges"`
}

// TagConfig declares one tag schema.
type TagConfig struct {
	ID     int32         `yaml:"id"`
	Name   string        `yaml:"name"`
	Fields []FieldConfig `yaml:"fields"`
}

// EdgeConfig declares one edge schema. Type must be positive.
type EdgeConfig struct {
	Type   int32         `yaml:"type"`
	Name   string        `yaml:"name"`
	Fields []FieldConfig `yaml:"fields"`
}

// FieldConfig declares one schema field.
type FieldConfig struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// LoadSchemaConfig reads schema declarations from a YAML file.
func LoadSchemaConfig(path string) (*SchemaConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("hopdb: read schema config: %w", err)
	}
	var sc SchemaConfig
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("hopdb: parse schema config: %w", err)
	}
	return &sc, nil
}

// ParseSupportedType maps a config type name to a SupportedType.
func ParseSupportedType(name string) (SupportedType, error) {
	switch name {
	case "bool":
		return TypeBool, nil
	case "int":
		return TypeInt, nil
	case "vid":
		return TypeVID, nil
	case "float":
		return TypeFloat, nil
	case "double":
		return TypeDouble, nil
	case "string":
		return TypeString, nil
	case "timestamp":
		return TypeTimestamp, nil
	default:
		return TypeUnknown, fmt.Errorf("hopdb: unsupported field type %q", name)
	}
}

// BuildRegistry populates a MemoryRegistry from schema declarations.
func (sc *SchemaConfig) BuildRegistry() (*MemoryRegistry, error) {
	reg := NewMemoryRegistry()
	for _, sp := range sc.Spaces {
		space := GraphSpaceID(sp.ID)
		for _, tc := range sp.Tags {
			schema, err := buildSchema(tc.Fields)
			if err != nil {
				return nil, err
			}
			reg.AddTag(space, tc.Name, TagID(tc.ID), schema)
		}
		for _, ec := range sp.Edges {
			if ec.Type <= 0 {
				return nil, fmt.Errorf("hopdb: edge %q must have a positive type", ec.Name)
			}
			schema, err := buildSchema(ec.Fields)
			if err != nil {
				return nil, err
			}
			reg.AddEdge(space, ec.Name, EdgeType(ec.Type), schema)
		}
	}
	return reg, nil
}

func buildSchema(fields []FieldConfig) (*Schema, error) {
	s := NewSchema()
	for _, fc := range fields {
		t, err := ParseSupportedType(fc.Type)
		if err != nil {
			return nil, err
		}
		s.Append(fc.Name, t)
	}
	return s, nil
}

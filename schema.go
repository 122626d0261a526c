package hopdb

import "sync"

// SchemaField is one named, typed column of a schema. Default, when set,
// overrides the type's zero value for missing properties.
type SchemaField struct {
	Name    string        `msgpack:"name"`
	Type    SupportedType `msgpack:"type"`
	Default Value         `msgpack:"default"`
}

// Schema is an ordered sequence of fields with stable indices. Schemas are
// small (tens of fields), so name lookup is a linear scan.
type Schema struct {
	Fields []SchemaField `msgpack:"fields"`
}

// NewSchema builds a schema from fields in declaration order.
func NewSchema(fields ...SchemaField) *Schema {
	return &Schema{Fields: fields}
}

// Append adds a field and returns the schema for chaining.
func (s *Schema) Append(name string, t SupportedType) *Schema {
	s.Fields = append(s.Fields, SchemaField{Name: name, Type: t})
	return s
}

// Len returns the number of fields.
func (s *Schema) Len() int { return len(s.Fields) }

// FieldIndex returns the index of the named field, or -1.
func (s *Schema) FieldIndex(name string) int {
	for i := range s.Fields {
		if s.Fields[i].Name == name {
			return i
		}
	}
	return -1
}

// FieldType returns the declared type of the named field, or TypeUnknown.
func (s *Schema) FieldType(name string) SupportedType {
	if i := s.FieldIndex(name); i >= 0 {
		return s.Fields[i].Type
	}
	return TypeUnknown
}

// Default returns the typed default value for the named field.
func (s *Schema) Default(name string) (Value, error) {
	i := s.FieldIndex(name)
	if i < 0 {
		return Value{}, dataErrorf("no field `%s' to default from", name)
	}
	f := s.Fields[i]
	if f.Default.Kind != ValueEmpty {
		return f.Default, nil
	}
	return zeroValue(f.Type)
}

// zeroValue returns the zero value of a supported type.
func zeroValue(t SupportedType) (Value, error) {
	switch t {
	case TypeBool:
		return BoolValue(false), nil
	case TypeInt, TypeVID, TypeTimestamp:
		return IntValue(0), nil
	case TypeFloat, TypeDouble:
		return FloatValue(0), nil
	case TypeString:
		return StrValue(""), nil
	case TypeYear, TypeYearMonth, TypeDate, TypeDateTime, TypePath:
		return Value{}, unimplementedErrorf("type %s is reserved", t)
	default:
		return Value{}, dataErrorf("no default for unknown type")
	}
}

// ---------------------------------------------------------------------------
// Schema registry
// ---------------------------------------------------------------------------

// SchemaRegistry maps names to ids and serves tag/edge schemas, all scoped
// to a graph space. The served implementation lives outside this module;
// MemoryRegistry below is used by the daemon and tests.
type SchemaRegistry interface {
	ToTagID(space GraphSpaceID, name string) (TagID, error)
	ToTagName(space GraphSpaceID, id TagID) (string, error)
	ToEdgeType(space GraphSpaceID, name string) (EdgeType, error)
	ToEdgeName(space GraphSpaceID, t EdgeType) (string, error)
	GetTagSchema(space GraphSpaceID, id TagID) (*Schema, error)
	GetEdgeSchema(space GraphSpaceID, t EdgeType) (*Schema, error)
	GetAllEdges(space GraphSpaceID) ([]string, error)
}

type spaceSchemas struct {
	tagIDs      map[string]TagID
	tagNames    map[TagID]string
	tagSchemas  map[TagID]*Schema
	edgeTypes   map[string]EdgeType
	edgeNames   map[EdgeType]string
	edgeSchemas map[EdgeType]*Schema
	edgeOrder   []string // registration order, served by GetAllEdges
}

// MemoryRegistry is a concurrency-safe in-memory SchemaRegistry.
type MemoryRegistry struct {
	mu     sync.RWMutex
	spaces map[GraphSpaceID]*spaceSchemas
}

// NewMemoryRegistry creates an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{spaces: make(map[GraphSpaceID]*spaceSchemas)}
}

func (r *MemoryRegistry) space(id GraphSpaceID) *spaceSchemas {
	sp, ok := r.spaces[id]
	if !ok {
		sp = &spaceSchemas{
			tagIDs:      make(map[string]TagID),
			tagNames:    make(map[TagID]string),
			tagSchemas:  make(map[TagID]*Schema),
			edgeTypes:   make(map[string]EdgeType),
			edgeNames:   make(map[EdgeType]string),
			edgeSchemas: make(map[EdgeType]*Schema),
		}
		r.spaces[id] = sp
	}
	return sp
}

// AddTag registers a tag schema under the given space.
func (r *MemoryRegistry) AddTag(space GraphSpaceID, name string, id TagID, schema *Schema) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sp := r.space(space)
	sp.tagIDs[name] = id
	sp.tagNames[id] = name
	sp.tagSchemas[id] = schema
}

// AddEdge registers an edge schema under the given space. The type must be
// positive (forward direction).
func (r *MemoryRegistry) AddEdge(space GraphSpaceID, name string, t EdgeType, schema *Schema) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sp := r.space(space)
	if _, dup := sp.edgeTypes[name]; !dup {
		sp.edgeOrder = append(sp.edgeOrder, name)
	}
	sp.edgeTypes[name] = t
	sp.edgeNames[t] = name
	sp.edgeSchemas[t] = schema
}

func (r *MemoryRegistry) ToTagID(space GraphSpaceID, name string) (TagID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if sp, ok := r.spaces[space]; ok {
		if id, ok := sp.tagIDs[name]; ok {
			return id, nil
		}
	}
	return 0, semanticErrorf("tag `%s' not found", name)
}

func (r *MemoryRegistry) ToTagName(space GraphSpaceID, id TagID) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if sp, ok := r.spaces[space]; ok {
		if name, ok := sp.tagNames[id]; ok {
			return name, nil
		}
	}
	return "", semanticErrorf("tag id %d not found", id)
}

func (r *MemoryRegistry) ToEdgeType(space GraphSpaceID, name string) (EdgeType, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if sp, ok := r.spaces[space]; ok {
		if t, ok := sp.edgeTypes[name]; ok {
			return t, nil
		}
	}
	return 0, semanticErrorf("edge `%s' not found", name)
}

func (r *MemoryRegistry) ToEdgeName(space GraphSpaceID, t EdgeType) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if sp, ok := r.spaces[space]; ok {
		if name, ok := sp.edgeNames[t.Abs()]; ok {
			return name, nil
		}
	}
	return "", semanticErrorf("edge type %d not found", t)
}

func (r *MemoryRegistry) GetTagSchema(space GraphSpaceID, id TagID) (*Schema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if sp, ok := r.spaces[space]; ok {
		if s, ok := sp.tagSchemas[id]; ok {
			return s, nil
		}
	}
	return nil, semanticErrorf("no schema for tag id %d", id)
}

func (r *MemoryRegistry) GetEdgeSchema(space GraphSpaceID, t EdgeType) (*Schema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if sp, ok := r.spaces[space]; ok {
		if s, ok := sp.edgeSchemas[t.Abs()]; ok {
			return s, nil
		}
	}
	return nil, semanticErrorf("no schema for edge type %d", t)
}

func (r *MemoryRegistry) GetAllEdges(space GraphSpaceID) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if sp, ok := r.spaces[space]; ok {
		out := make([]string, len(sp.edgeOrder))
		copy(out, sp.edgeOrder)
		return out, nil
	}
	return nil, semanticErrorf("space %d not found", space)
}

package storage

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"

	hopdb "github.com/hopdb/hopdb"
	bolt "go.etcd.io/bbolt"
)

// ---------------------------------------------------------------------------
// Shard store
//
// One bbolt file per shard. Layout:
//
//	vertices:  space(4) + vid(8) + tag(4)                    → encoded tag row
//	edges:     space(4) + src(8) + type(4) + rank(8) + dst(8) → encoded edge row
//
// All key integers are big-endian so prefix scans walk a vertex's edges of
// one type contiguously. Inserting a forward edge also writes a reverse
// entry under the negated type with an empty value: the reverse view
// carries only the reserved fields, which is why a reverse traversal needs
// a second round-trip for edge properties.
// ---------------------------------------------------------------------------

var (
	bucketVertices = []byte("vertices")
	bucketEdges    = []byte("edges")
)

// Store is a bbolt-backed shard answering the three storage calls.
type Store struct {
	db       *bolt.DB
	registry hopdb.SchemaRegistry
	log      *slog.Logger
}

// OpenStore creates or opens a shard file.
func OpenStore(path string, registry hopdb.SchemaRegistry, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: open shard %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketVertices); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketEdges)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: init shard %s: %w", path, err)
	}
	return &Store{db: db, registry: registry, log: log}, nil
}

// Close releases the underlying bbolt file.
func (s *Store) Close() error { return s.db.Close() }

func vertexKey(space hopdb.GraphSpaceID, vid hopdb.VID, tag hopdb.TagID) []byte {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint32(buf[0:4], uint32(space))
	binary.BigEndian.PutUint64(buf[4:12], uint64(vid))
	binary.BigEndian.PutUint32(buf[12:16], uint32(tag))
	return buf
}

func edgeKey(space hopdb.GraphSpaceID, src hopdb.VID, t hopdb.EdgeType, rank hopdb.EdgeRank, dst hopdb.VID) []byte {
	buf := make([]byte, 32)
	binary.BigEndian.PutUint32(buf[0:4], uint32(space))
	binary.BigEndian.PutUint64(buf[4:12], uint64(src))
	binary.BigEndian.PutUint32(buf[12:16], uint32(t))
	binary.BigEndian.PutUint64(buf[16:24], uint64(rank))
	binary.BigEndian.PutUint64(buf[24:32], uint64(dst))
	return buf
}

func edgePrefix(space hopdb.GraphSpaceID, src hopdb.VID, t hopdb.EdgeType) []byte {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint32(buf[0:4], uint32(space))
	binary.BigEndian.PutUint64(buf[4:12], uint64(src))
	binary.BigEndian.PutUint32(buf[12:16], uint32(t))
	return buf
}

func parseEdgeKey(key []byte) (rank hopdb.EdgeRank, dst hopdb.VID) {
	rank = hopdb.EdgeRank(binary.BigEndian.Uint64(key[16:24]))
	dst = hopdb.VID(binary.BigEndian.Uint64(key[24:32]))
	return rank, dst
}

// InsertVertex writes one tag row for a vertex, encoded against the tag's
// registry schema.
func (s *Store) InsertVertex(space hopdb.GraphSpaceID, vid hopdb.VID, tag hopdb.TagID, values []hopdb.Value) error {
	schema, err := s.registry.GetTagSchema(space, tag)
	if err != nil {
		return err
	}
	row, err := hopdb.EncodeRow(schema, values)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketVertices).Put(vertexKey(space, vid, tag), row)
	})
}

// InsertEdge writes one forward edge row plus the reverse entry under the
// negated type. The key's type must be positive.
func (s *Store) InsertEdge(space hopdb.GraphSpaceID, key hopdb.EdgeKey, values []hopdb.Value) error {
	if key.Type <= 0 {
		return fmt.Errorf("storage: edge type must be positive, got %d", key.Type)
	}
	schema, err := s.registry.GetEdgeSchema(space, key.Type)
	if err != nil {
		return err
	}
	row, err := hopdb.EncodeRow(schema, values)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEdges)
		if err := b.Put(edgeKey(space, key.Src, key.Type, key.Rank, key.Dst), row); err != nil {
			return err
		}
		// Reverse entry: reserved fields only.
		return b.Put(edgeKey(space, key.Dst, -key.Type, key.Rank, key.Src), nil)
	})
}

// InsertReverseEdge writes only the reverse entry for an edge whose source
// vertex lives on another shard.
func (s *Store) InsertReverseEdge(space hopdb.GraphSpaceID, key hopdb.EdgeKey) error {
	if key.Type <= 0 {
		return fmt.Errorf("storage: edge type must be positive, got %d", key.Type)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEdges).
			Put(edgeKey(space, key.Dst, -key.Type, key.Rank, key.Src), nil)
	})
}

// respSchemaForEdge builds the response schema of one edge type from the
// requested props, resolving non-reserved names against the registry.
func (s *Store) respSchemaForEdge(space hopdb.GraphSpaceID, t hopdb.EdgeType, props []hopdb.PropDef) (*hopdb.Schema, error) {
	schema := hopdb.NewSchema()
	for _, p := range props {
		if p.Owner != hopdb.OwnerEdge || p.EdgeType != t {
			continue
		}
		switch p.Name {
		case hopdb.PropSrc, hopdb.PropDst:
			schema.Append(p.Name, hopdb.TypeVID)
		case hopdb.PropRank, hopdb.PropType:
			schema.Append(p.Name, hopdb.TypeInt)
		default:
			full, err := s.registry.GetEdgeSchema(space, t)
			if err != nil {
				return nil, err
			}
			ft := full.FieldType(p.Name)
			if ft == hopdb.TypeUnknown {
				return nil, fmt.Errorf("storage: edge type %d has no prop %q", t, p.Name)
			}
			schema.Append(p.Name, ft)
		}
	}
	if schema.Len() == 0 {
		return nil, nil
	}
	return schema, nil
}

// respSchemaForTag builds the response schema of one tag from the
// requested props with the given owner.
func (s *Store) respSchemaForTag(space hopdb.GraphSpaceID, tag hopdb.TagID, owner hopdb.PropOwner, props []hopdb.PropDef) (*hopdb.Schema, error) {
	schema := hopdb.NewSchema()
	for _, p := range props {
		if p.Owner != owner || p.TagID != tag {
			continue
		}
		full, err := s.registry.GetTagSchema(space, tag)
		if err != nil {
			return nil, err
		}
		ft := full.FieldType(p.Name)
		if ft == hopdb.TypeUnknown {
			return nil, fmt.Errorf("storage: tag %d has no prop %q", tag, p.Name)
		}
		schema.Append(p.Name, ft)
	}
	if schema.Len() == 0 {
		return nil, nil
	}
	return schema, nil
}

func tagsRequested(props []hopdb.PropDef, owner hopdb.PropOwner) []hopdb.TagID {
	seen := make(map[hopdb.TagID]struct{})
	var out []hopdb.TagID
	for _, p := range props {
		if p.Owner != owner {
			continue
		}
		if _, dup := seen[p.TagID]; dup {
			continue
		}
		seen[p.TagID] = struct{}{}
		out = append(out, p.TagID)
	}
	return out
}

// GetNeighbors scans each requested vertex's edges of the requested types,
// applying the pushdown filter to forward edges before returning them.
func (s *Store) GetNeighbors(ctx context.Context, req *GetNeighborsRequest) (*ShardQueryResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var filter *hopdb.Expression
	if req.Filter != "" {
		f, err := hopdb.DecodeFilter(req.Filter)
		if err != nil {
			return nil, err
		}
		filter = f
	}

	resp := &hopdb.QueryResponse{
		VertexSchema: make(map[hopdb.TagID]*hopdb.Schema),
		EdgeSchema:   make(map[hopdb.EdgeType]*hopdb.Schema),
	}

	edgeSchemas := make(map[hopdb.EdgeType]*hopdb.Schema, len(req.EdgeTypes))
	fullSchemas := make(map[hopdb.EdgeType]*hopdb.Schema, len(req.EdgeTypes))
	for _, t := range req.EdgeTypes {
		schema, err := s.respSchemaForEdge(req.Space, t, req.Props)
		if err != nil {
			return nil, err
		}
		if schema == nil {
			continue
		}
		edgeSchemas[t] = schema
		resp.EdgeSchema[t] = schema
		full, err := s.registry.GetEdgeSchema(req.Space, t)
		if err != nil {
			return nil, err
		}
		fullSchemas[t] = full
	}

	srcTags := tagsRequested(req.Props, hopdb.OwnerSource)
	tagSchemas := make(map[hopdb.TagID]*hopdb.Schema, len(srcTags))
	for _, tag := range srcTags {
		schema, err := s.respSchemaForTag(req.Space, tag, hopdb.OwnerSource, req.Props)
		if err != nil {
			return nil, err
		}
		if schema == nil {
			continue
		}
		tagSchemas[tag] = schema
		resp.VertexSchema[tag] = schema
	}

	err := s.db.View(func(tx *bolt.Tx) error {
		vb := tx.Bucket(bucketVertices)
		eb := tx.Bucket(bucketEdges)
		for _, vid := range req.VIDs {
			vdata := hopdb.VertexData{VertexID: vid}

			for _, tag := range srcTags {
				schema, ok := tagSchemas[tag]
				if !ok {
					continue
				}
				stored := vb.Get(vertexKey(req.Space, vid, tag))
				if stored == nil {
					continue
				}
				row, err := s.projectTagRow(req.Space, tag, stored, schema)
				if err != nil {
					return err
				}
				vdata.TagData = append(vdata.TagData, hopdb.TagData{TagID: tag, Data: row})
			}

			for _, t := range req.EdgeTypes {
				schema, ok := edgeSchemas[t]
				if !ok {
					continue
				}
				edata := hopdb.EdgeData{Type: t}
				prefix := edgePrefix(req.Space, vid, t)
				cur := eb.Cursor()
				for k, v := cur.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = cur.Next() {
					rank, dst := parseEdgeKey(k)
					if filter != nil && t > 0 {
						keep, err := evalEdgeFilter(filter, fullSchemas[t], v)
						if err != nil {
							return err
						}
						if !keep {
							continue
						}
					}
					row, err := s.buildEdgeRow(schema, fullSchemas[t], t, vid, dst, rank, v)
					if err != nil {
						return err
					}
					edata.Edges = append(edata.Edges, hopdb.EdgeRecord{Dst: dst, Rank: rank, Props: row})
					resp.TotalEdges++
				}
				if len(edata.Edges) > 0 {
					vdata.EdgeData = append(vdata.EdgeData, edata)
				}
			}

			if len(vdata.TagData) > 0 || len(vdata.EdgeData) > 0 {
				resp.Vertices = append(resp.Vertices, vdata)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &ShardQueryResponse{Resp: resp}, nil
}

// projectTagRow re-encodes the requested subset of a stored tag row.
func (s *Store) projectTagRow(space hopdb.GraphSpaceID, tag hopdb.TagID, stored []byte, schema *hopdb.Schema) ([]byte, error) {
	full, err := s.registry.GetTagSchema(space, tag)
	if err != nil {
		return nil, err
	}
	values := make([]hopdb.Value, 0, schema.Len())
	for _, f := range schema.Fields {
		v, err := hopdb.DecodeField(full, stored, f.Name)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return hopdb.EncodeRow(schema, values)
}

// buildEdgeRow materializes one response edge row: reserved fields from
// the key, everything else from the stored forward row. Reverse entries
// carry no stored row; their non-reserved fields default.
func (s *Store) buildEdgeRow(schema, full *hopdb.Schema, t hopdb.EdgeType,
	src, dst hopdb.VID, rank hopdb.EdgeRank, stored []byte) ([]byte, error) {

	values := make([]hopdb.Value, 0, schema.Len())
	for _, f := range schema.Fields {
		switch f.Name {
		case hopdb.PropDst:
			values = append(values, hopdb.IntValue(int64(dst)))
		case hopdb.PropSrc:
			values = append(values, hopdb.IntValue(int64(src)))
		case hopdb.PropRank:
			values = append(values, hopdb.IntValue(int64(rank)))
		case hopdb.PropType:
			values = append(values, hopdb.IntValue(int64(t)))
		default:
			if t > 0 && len(stored) > 0 {
				v, err := hopdb.DecodeField(full, stored, f.Name)
				if err != nil {
					return nil, err
				}
				values = append(values, v)
				continue
			}
			v, err := full.Default(f.Name)
			if err != nil {
				return nil, err
			}
			values = append(values, v)
		}
	}
	return hopdb.EncodeRow(schema, values)
}

// evalEdgeFilter runs a pushdown filter against one forward edge row. The
// getter resolves any edge alias against the current row — the shard
// doesn't know alias names, only the row it is looking at.
func evalEdgeFilter(filter *hopdb.Expression, full *hopdb.Schema, stored []byte) (bool, error) {
	getters := &hopdb.Getters{
		GetAliasProp: func(_, prop string) (hopdb.Value, error) {
			return hopdb.DecodeField(full, stored, prop)
		},
	}
	v, err := filter.Eval(getters)
	if err != nil {
		return false, err
	}
	return v.AsBool(), nil
}

// GetVertexProps serves the requested tag rows of each vertex.
func (s *Store) GetVertexProps(ctx context.Context, req *GetVertexPropsRequest) (*ShardQueryResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resp := &hopdb.QueryResponse{VertexSchema: make(map[hopdb.TagID]*hopdb.Schema)}
	tags := tagsRequested(req.Props, hopdb.OwnerDest)
	tagSchemas := make(map[hopdb.TagID]*hopdb.Schema, len(tags))
	for _, tag := range tags {
		schema, err := s.respSchemaForTag(req.Space, tag, hopdb.OwnerDest, req.Props)
		if err != nil {
			return nil, err
		}
		if schema == nil {
			continue
		}
		tagSchemas[tag] = schema
		resp.VertexSchema[tag] = schema
	}

	err := s.db.View(func(tx *bolt.Tx) error {
		vb := tx.Bucket(bucketVertices)
		for _, vid := range req.VIDs {
			vdata := hopdb.VertexData{VertexID: vid}
			for _, tag := range tags {
				schema, ok := tagSchemas[tag]
				if !ok {
					continue
				}
				stored := vb.Get(vertexKey(req.Space, vid, tag))
				if stored == nil {
					continue
				}
				row, err := s.projectTagRow(req.Space, tag, stored, schema)
				if err != nil {
					return err
				}
				vdata.TagData = append(vdata.TagData, hopdb.TagData{TagID: tag, Data: row})
			}
			if len(vdata.TagData) > 0 {
				resp.Vertices = append(resp.Vertices, vdata)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &ShardQueryResponse{Resp: resp}, nil
}

// GetEdgeProps serves fully-keyed forward edge rows. The response schema
// leads with the reserved columns that key each row.
func (s *Store) GetEdgeProps(ctx context.Context, req *GetEdgePropsRequest) (*ShardEdgePropResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(req.Keys) == 0 {
		return &ShardEdgePropResponse{Resp: &hopdb.EdgePropResponse{}}, nil
	}

	t := req.Keys[0].Type.Abs()
	full, err := s.registry.GetEdgeSchema(req.Space, t)
	if err != nil {
		return nil, err
	}

	schema := hopdb.NewSchema()
	schema.Append(hopdb.PropSrc, hopdb.TypeVID)
	schema.Append(hopdb.PropDst, hopdb.TypeVID)
	schema.Append(hopdb.PropType, hopdb.TypeInt)
	schema.Append(hopdb.PropRank, hopdb.TypeInt)
	for _, p := range req.Props {
		if p.Owner != hopdb.OwnerEdge {
			continue
		}
		ft := full.FieldType(p.Name)
		if ft == hopdb.TypeUnknown {
			return nil, fmt.Errorf("storage: edge type %d has no prop %q", t, p.Name)
		}
		schema.Append(p.Name, ft)
	}

	resp := &hopdb.EdgePropResponse{Schema: schema}
	err = s.db.View(func(tx *bolt.Tx) error {
		eb := tx.Bucket(bucketEdges)
		for _, key := range req.Keys {
			stored := eb.Get(edgeKey(req.Space, key.Src, key.Type.Abs(), key.Rank, key.Dst))
			if stored == nil {
				continue
			}
			values := []hopdb.Value{
				hopdb.IntValue(int64(key.Src)),
				hopdb.IntValue(int64(key.Dst)),
				hopdb.IntValue(int64(key.Type.Abs())),
				hopdb.IntValue(int64(key.Rank)),
			}
			for _, f := range schema.Fields[4:] {
				v, err := hopdb.DecodeField(full, stored, f.Name)
				if err != nil {
					return err
				}
				values = append(values, v)
			}
			row, err := hopdb.EncodeRow(schema, values)
			if err != nil {
				return err
			}
			resp.Data = append(resp.Data, row)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &ShardEdgePropResponse{Resp: resp}, nil
}

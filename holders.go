package hopdb

// ---------------------------------------------------------------------------
// Per-query side tables
//
// VertexHolder caches destination-tag payloads fetched in the dedicated
// vertex-props round-trip; EdgeHolder caches forward-side edge payloads
// fetched in the reverse-mode second round-trip. Both live for the query
// and are accessed only from its serial runner.
// ---------------------------------------------------------------------------

type schemaRow struct {
	schema *Schema
	row    []byte
}

// VertexHolder owns destination vertices' tag-data blobs keyed by
// (vertex id, tag id).
type VertexHolder struct {
	data    map[VID]map[TagID]schemaRow
	schemas map[TagID]*Schema
}

// NewVertexHolder creates an empty holder.
func NewVertexHolder() *VertexHolder {
	return &VertexHolder{
		data:    make(map[VID]map[TagID]schemaRow),
		schemas: make(map[TagID]*Schema),
	}
}

// Add drains every vertex and tag-data blob of a vertex-props response.
func (h *VertexHolder) Add(resp *QueryResponse) {
	if resp == nil || resp.VertexSchema == nil {
		return
	}
	for _, vdata := range resp.Vertices {
		m := make(map[TagID]schemaRow, len(vdata.TagData))
		for _, td := range vdata.TagData {
			schema, ok := resp.VertexSchema[td.TagID]
			if !ok {
				continue
			}
			m[td.TagID] = schemaRow{schema: schema, row: td.Data}
			h.schemas[td.TagID] = schema
		}
		h.data[vdata.VertexID] = m
	}
}

// Get decodes one property of the held row for (vid, tid). A missing
// vertex or tag falls back to the tag schema's default; a property the
// schema doesn't know fails.
func (h *VertexHolder) Get(vid VID, tid TagID, prop string) (Value, error) {
	tags, ok := h.data[vid]
	if !ok {
		return h.defaultProp(tid, prop)
	}
	sr, ok := tags[tid]
	if !ok {
		return h.defaultProp(tid, prop)
	}
	return DecodeField(sr.schema, sr.row, prop)
}

func (h *VertexHolder) defaultProp(tid TagID, prop string) (Value, error) {
	schema, ok := h.schemas[tid]
	if !ok {
		return Value{}, dataErrorf("unknown vertex tag %d", tid)
	}
	return schema.Default(prop)
}

// ---------------------------------------------------------------------------

type edgeHolderKey struct {
	src VID
	dst VID
	typ EdgeType
}

// EdgeHolder owns forward-side edge payloads keyed by (src, dst, type).
// Every key is stored under the absolute (positive) edge type.
type EdgeHolder struct {
	edges   map[edgeHolderKey]schemaRow
	schemas map[EdgeType]*Schema
}

// NewEdgeHolder creates an empty holder.
func NewEdgeHolder() *EdgeHolder {
	return &EdgeHolder{
		edges:   make(map[edgeHolderKey]schemaRow),
		schemas: make(map[EdgeType]*Schema),
	}
}

// Add iterates an edge-props response row set, keys each row by its
// reserved _SRC/_DST/_TYPE columns, and re-encodes it into the holder's
// canonical schema. The schema is also recorded under the positive edge
// type for default lookups.
func (h *EdgeHolder) Add(resp *EdgePropResponse) error {
	if resp == nil || resp.Schema == nil || len(resp.Data) == 0 {
		return nil
	}
	schema := resp.Schema
	for _, data := range resp.Data {
		values, err := DecodeRow(schema, data)
		if err != nil {
			return err
		}
		src, err := DecodeField(schema, data, PropSrc)
		if err != nil {
			continue
		}
		dst, err := DecodeField(schema, data, PropDst)
		if err != nil {
			continue
		}
		typ, err := DecodeField(schema, data, PropType)
		if err != nil {
			continue
		}
		row, err := EncodeRow(schema, values)
		if err != nil {
			return dataErrorf("re-encode edge row: %v", err)
		}
		key := edgeHolderKey{
			src: VID(src.I),
			dst: VID(dst.I),
			typ: EdgeType(typ.I).Abs(),
		}
		h.edges[key] = schemaRow{schema: schema, row: row}
		h.schemas[key.typ] = schema
	}
	return nil
}

// Get decodes one property of the edge keyed by (src, dst, |type|). A
// missing key is an error, never a silent default.
func (h *EdgeHolder) Get(src, dst VID, t EdgeType, prop string) (Value, error) {
	sr, ok := h.edges[edgeHolderKey{src: src, dst: dst, typ: t.Abs()}]
	if !ok {
		return Value{}, dataErrorf("edge not held: src %d, dst %d, type %d", src, dst, t)
	}
	v, err := DecodeField(sr.schema, sr.row, prop)
	if err != nil {
		return Value{}, dataErrorf("prop not found: `%s'", prop)
	}
	return v, nil
}

// GetDefaultProp returns the schema default for an edge type the current
// record doesn't match. When the reverse schema is unknown, the reserved
// _SRC/_DST/_RANK columns default to 0; anything else is an error.
func (h *EdgeHolder) GetDefaultProp(t EdgeType, prop string) (Value, error) {
	schema, ok := h.schemas[t.Abs()]
	if !ok {
		if prop == PropSrc || prop == PropDst || prop == PropRank {
			return IntValue(0), nil
		}
		return Value{}, dataErrorf("get default prop `%s' failed in reverse traversal", prop)
	}
	return schema.Default(prop)
}

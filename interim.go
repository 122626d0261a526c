package hopdb

// ---------------------------------------------------------------------------
// Interim result
//
// A schema-encoded row set flowing between pipelined executors. The
// upstream stage infers the schema from its first projected row; the
// downstream stage addresses rows through a VID index built over the
// designated vertex-id column.
// ---------------------------------------------------------------------------

// InterimResult is a columnar buffer of a prior stage's output.
type InterimResult struct {
	colNames []string
	schema   *Schema
	rows     [][]byte
}

// NewInterimResult creates an empty result carrying only column names.
func NewInterimResult(colNames []string) *InterimResult {
	return &InterimResult{colNames: colNames}
}

// SetInterim attaches the inferred schema and the encoded row set.
func (r *InterimResult) SetInterim(schema *Schema, rows [][]byte) {
	r.schema = schema
	r.rows = rows
}

// ColumnNames returns the output column names.
func (r *InterimResult) ColumnNames() []string { return r.colNames }

// Schema returns the inferred schema, or nil when the result is empty.
func (r *InterimResult) Schema() *Schema { return r.schema }

// HasData reports whether any rows were materialized.
func (r *InterimResult) HasData() bool { return r.schema != nil && len(r.rows) > 0 }

// RowCount returns the number of materialized rows.
func (r *InterimResult) RowCount() int { return len(r.rows) }

func (r *InterimResult) fieldName(col string) (string, error) {
	if r.schema == nil {
		return "", semanticErrorf("column `%s' not found in empty input", col)
	}
	if r.schema.FieldIndex(col) < 0 {
		return "", semanticErrorf("column `%s' not found", col)
	}
	return col, nil
}

// GetVIDs extracts the named column as a vertex-id list. The column must
// be integer-typed.
func (r *InterimResult) GetVIDs(col string) ([]VID, error) {
	name, err := r.fieldName(col)
	if err != nil {
		return nil, err
	}
	switch r.schema.FieldType(name) {
	case TypeInt, TypeVID, TypeTimestamp:
	default:
		return nil, semanticErrorf("column `%s' is not a vertex id column", col)
	}
	vids := make([]VID, 0, len(r.rows))
	for _, row := range r.rows {
		v, err := DecodeField(r.schema, row, name)
		if err != nil {
			return nil, err
		}
		vids = append(vids, VID(v.I))
	}
	return vids, nil
}

// BuildIndex makes the result addressable by the named vertex-id column.
func (r *InterimResult) BuildIndex(col string) (*VIDIndex, error) {
	vids, err := r.GetVIDs(col)
	if err != nil {
		return nil, err
	}
	idx := &VIDIndex{schema: r.schema, rows: make(map[VID][]Value, len(vids))}
	for i, row := range r.rows {
		if _, dup := idx.rows[vids[i]]; dup {
			// First occurrence wins; row order is undefined upstream.
			continue
		}
		values, err := DecodeRow(r.schema, row)
		if err != nil {
			return nil, err
		}
		idx.rows[vids[i]] = values
	}
	return idx, nil
}

// VIDIndex addresses interim rows by a designated vertex-id column.
type VIDIndex struct {
	schema *Schema
	rows   map[VID][]Value
}

// GetColumnWithVID returns the named column of the row keyed by vid.
func (x *VIDIndex) GetColumnWithVID(vid VID, col string) (Value, error) {
	row, ok := x.rows[vid]
	if !ok {
		return Value{}, dataErrorf("no input row for vertex %d", vid)
	}
	i := x.schema.FieldIndex(col)
	if i < 0 {
		return Value{}, semanticErrorf("column `%s' not found", col)
	}
	return row[i], nil
}

// GetColumnType returns the declared type of the named column.
func (x *VIDIndex) GetColumnType(col string) SupportedType {
	return x.schema.FieldType(col)
}

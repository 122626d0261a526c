package hopdb

// ColumnValueKind tags the wire kind of a terminal column value.
type ColumnValueKind uint8

const (
	ColEmpty ColumnValueKind = iota
	ColBool
	ColInteger
	ColID
	ColSingle
	ColDouble
	ColStr
	ColTimestamp
)

// ColumnValue is one strongly-typed cell of a terminal response row. The
// kind is chosen from the column's declared SupportedType; columns whose
// type could not be inferred fall back to the runtime kind of the value.
type ColumnValue struct {
	Kind      ColumnValueKind `json:"kind"`
	Bool      bool            `json:"bool,omitempty"`
	Integer   int64           `json:"integer,omitempty"`
	ID        VID             `json:"id,omitempty"`
	Single    float32         `json:"single,omitempty"`
	Double    float64         `json:"double,omitempty"`
	Str       string          `json:"str,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
}

// Row is one terminal response row.
type Row struct {
	Columns []ColumnValue `json:"columns"`
}

// ExecutionResponse is the terminal output of a query: human-readable
// column names plus typed rows.
type ExecutionResponse struct {
	ColumnNames []string `json:"column_names"`
	Rows        []Row    `json:"rows"`
}

package hopdb

// Parsed GO statement. The statement parser is a collaborator of this
// module; these clause structs are its output and the executor's input.

// StepClause carries the hop count. Upto requests the (unsupported)
// reach-within-N semantics.
type StepClause struct {
	Steps uint32
	Upto  bool
}

// FromClause names the start set: either literal VID expressions (instant
// mode) or a single `$-.col' / `$var.col' reference.
type FromClause struct {
	VIDs []*Expression // instant mode
	Ref  *Expression   // pipe/variable mode (ExprInputProp or ExprVariableProp)
}

// OverEdge is one traversed edge, optionally aliased.
type OverEdge struct {
	Name  string
	Alias string
}

// OverClause enumerates the traversed edges. All expands to every edge
// type in the current space.
type OverClause struct {
	Edges     []OverEdge
	All       bool
	Reversely bool
}

// WhereClause carries the filter expression.
type WhereClause struct {
	Filter *Expression
}

// YieldColumn is one projected column. FunName is set when the column
// applies an aggregate function (rejected by GO without GROUP BY).
type YieldColumn struct {
	Expr    *Expression
	Alias   string
	FunName string
}

// Name returns the output column name: the alias if present, else the
// expression's textual form.
func (c *YieldColumn) Name() string {
	if c.Alias != "" {
		return c.Alias
	}
	return c.Expr.String()
}

// YieldClause is the projection list.
type YieldClause struct {
	Columns  []*YieldColumn
	Distinct bool
}

// GoSentence is a parsed GO statement.
type GoSentence struct {
	Step  *StepClause
	From  *FromClause
	Over  *OverClause
	Where *WhereClause
	Yield *YieldClause
}

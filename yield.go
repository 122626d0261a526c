package hopdb

// yieldClauseWrapper resolves the YIELD columns against the pipeline
// context. A `$-.*' or `$var.*' column expands to every column of the
// corresponding interim result, in its column order.
type yieldClauseWrapper struct {
	clause *YieldClause
}

func newYieldClauseWrapper(clause *YieldClause) *yieldClauseWrapper {
	return &yieldClauseWrapper{clause: clause}
}

// prepare returns the resolved projection list.
func (w *yieldClauseWrapper) prepare(inputs *InterimResult, vars *VariableHolder) ([]*YieldColumn, error) {
	if w.clause == nil {
		return nil, nil
	}
	var out []*YieldColumn
	for _, col := range w.clause.Columns {
		expanded, err := expandWildcard(col, inputs, vars)
		if err != nil {
			return nil, err
		}
		if expanded != nil {
			out = append(out, expanded...)
			continue
		}
		out = append(out, col)
	}
	return out, nil
}

// expandWildcard handles `$-.*' and `$var.*'. Returns nil when the column
// is not a wildcard.
func expandWildcard(col *YieldColumn, inputs *InterimResult, vars *VariableHolder) ([]*YieldColumn, error) {
	e := col.Expr
	if e == nil || e.Prop != "*" {
		return nil, nil
	}
	switch e.Kind {
	case ExprInputProp:
		if inputs == nil {
			return nil, semanticErrorf("no input to expand `$-.*' from")
		}
		return columnsFor(inputs.ColumnNames(), func(name string) *Expression {
			return &Expression{Kind: ExprInputProp, Prop: name}
		}), nil
	case ExprVariableProp:
		v, ok := vars.Get(e.Ref)
		if !ok {
			return nil, semanticErrorf("variable `%s' not defined", e.Ref)
		}
		return columnsFor(v.ColumnNames(), func(name string) *Expression {
			return &Expression{Kind: ExprVariableProp, Ref: e.Ref, Prop: name}
		}), nil
	default:
		return nil, nil
	}
}

func columnsFor(names []string, mk func(string) *Expression) []*YieldColumn {
	cols := make([]*YieldColumn, 0, len(names))
	for _, name := range names {
		cols = append(cols, &YieldColumn{Expr: mk(name)})
	}
	return cols
}

package hopdb

// whereWrapper prepares the WHERE filter and precomputes its pushdown
// form. The serialized filter is handed to storage only on the final hop
// of a forward traversal; reverse traversal always evaluates locally.
type whereWrapper struct {
	filter   *Expression
	pushdown string
}

// newWhereWrapper wraps an optional WHERE clause.
func newWhereWrapper(clause *WhereClause) *whereWrapper {
	w := &whereWrapper{}
	if clause != nil {
		w.filter = clause.Filter
	}
	return w
}

// prepare registers the filter's referenced props and, when the filter
// only touches data a shard can see, serializes it for pushdown.
func (w *whereWrapper) prepare(ctx *ExprContext) error {
	if w.filter == nil {
		return nil
	}
	if err := w.filter.Prepare(ctx); err != nil {
		return err
	}
	if pushdownable(w.filter) {
		s, err := EncodeFilter(w.filter)
		if err != nil {
			return err
		}
		w.pushdown = s
	}
	return nil
}

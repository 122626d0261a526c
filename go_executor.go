package hopdb

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ---------------------------------------------------------------------------
// GO executor — multi-hop traversal
//
// Public API:
//
//	exec := hopdb.NewGoExecutor(sentence, ectx)
//	exec.FeedResult(priorStage)          // optional pipe input
//	if err := exec.Run(ctx); err != nil { ... }
//	resp := exec.Response()
//
// The executor advances one hop per storage round-trip. Every continuation
// runs on the query's serial queue, so all per-query state below is
// accessed single-threaded.
// ---------------------------------------------------------------------------

type fromType uint8

const (
	fromInstant fromType = iota + 1
	fromPipe
	fromVariable
)

type execState uint8

const (
	stateReady execState = iota
	stateRunning
	stateDone
	stateFailed
)

// GoExecutor executes one GO statement.
type GoExecutor struct {
	ectx     *ExecutionContext
	sentence *GoSentence

	expCtx *ExprContext
	where  *whereWrapper
	yields []*YieldColumn

	steps   uint32
	curStep uint32

	fromType fromType
	colname  string
	varname  string

	starts    []VID
	edgeTypes []EdgeType
	reversely bool

	distinct         bool
	distinctPushdown bool

	backTracker  *BackTracker
	vertexHolder *VertexHolder
	edgeHolder   *EdgeHolder

	inputs *InterimResult
	index  *VIDIndex

	onResult func(*InterimResult)
	resp     *ExecutionResponse

	state   execState
	started time.Time
	done    func(error)
}

// NewGoExecutor creates an executor for a parsed GO statement.
func NewGoExecutor(sentence *GoSentence, ectx *ExecutionContext) *GoExecutor {
	return &GoExecutor{
		ectx:     ectx,
		sentence: sentence,
		steps:    1,
		curStep:  1,
	}
}

// FeedResult binds the prior pipeline stage's output as `$-' input.
func (e *GoExecutor) FeedResult(r *InterimResult) { e.inputs = r }

// SetOnResult switches the executor to pipe mode: the projection is
// materialized as an InterimResult and handed to the hook instead of a
// terminal response.
func (e *GoExecutor) SetOnResult(fn func(*InterimResult)) { e.onResult = fn }

// Response returns the terminal response after a successful run in
// terminal mode.
func (e *GoExecutor) Response() *ExecutionResponse { return e.resp }

// Execute starts the query asynchronously. done is invoked exactly once,
// on the query's serial queue, with the terminal error or nil.
func (e *GoExecutor) Execute(ctx context.Context, done func(error)) {
	e.done = done
	e.started = time.Now()
	e.state = stateRunning
	e.ectx.Metrics().QueriesTotal.Add(1)
	e.ectx.Queue().Post(func() { e.execute(ctx) })
}

// Run executes the query and blocks until it finishes.
func (e *GoExecutor) Run(ctx context.Context) error {
	ch := make(chan error, 1)
	e.Execute(ctx, func(err error) { ch <- err })
	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *GoExecutor) execute(ctx context.Context) {
	if err := e.prepareClauses(); err != nil {
		e.doError(err)
		return
	}
	if err := e.setupStarts(); err != nil {
		e.doError(err)
		return
	}
	if len(e.starts) == 0 {
		e.onEmptyInputs()
		return
	}
	if e.distinct {
		e.starts = uniqueVIDs(e.starts)
	}
	e.stepOut(ctx)
}

func (e *GoExecutor) space() GraphSpaceID { return e.ectx.Space() }

func (e *GoExecutor) isFinalStep() bool { return e.curStep == e.steps }

func (e *GoExecutor) doError(err error) {
	if e.state == stateDone || e.state == stateFailed {
		return
	}
	e.state = stateFailed
	e.ectx.Metrics().QueryErrorTotal.Add(1)
	e.ectx.Metrics().RecordQueryDuration(time.Since(e.started))
	e.ectx.Log().Error("go execution failed", "error", err)
	if e.done != nil {
		e.done(err)
	}
}

func (e *GoExecutor) doFinish() {
	if e.state == stateDone || e.state == stateFailed {
		return
	}
	e.state = stateDone
	e.ectx.Metrics().RecordQueryDuration(time.Since(e.started))
	if e.done != nil {
		e.done(nil)
	}
}

// ---------------------------------------------------------------------------
// Clause preparation
// ---------------------------------------------------------------------------

func (e *GoExecutor) prepareClauses() error {
	if e.sentence == nil {
		return internalErrorf("go sentence shall never be null")
	}
	if e.space() <= 0 {
		return semanticErrorf("please choose a graph space with `USE spaceName' firstly")
	}
	e.expCtx = NewExprContext(e.space())
	e.expCtx.SetTimezone(e.ectx.Timezone())

	for _, prep := range []func() error{
		e.prepareStep,
		e.prepareFrom,
		e.prepareOver,
		e.prepareWhere,
		e.prepareYield,
		e.prepareNeededProps,
		e.prepareDistinct,
	} {
		if err := prep(); err != nil {
			e.ectx.Log().Error("preparing failed", "error", err)
			return err
		}
	}
	return nil
}

func (e *GoExecutor) prepareStep() error {
	if clause := e.sentence.Step; clause != nil {
		e.steps = clause.Steps
		if clause.Upto {
			return syntaxErrorf("`UPTO' not supported yet")
		}
	}
	if e.steps < 1 {
		return semanticErrorf("step count should be greater than zero")
	}
	if e.steps != 1 {
		e.backTracker = NewBackTracker()
	}
	return nil
}

func (e *GoExecutor) prepareFrom() error {
	clause := e.sentence.From
	if clause == nil {
		return internalErrorf("from clause shall never be null")
	}
	if clause.Ref != nil {
		switch clause.Ref.Kind {
		case ExprInputProp:
			e.fromType = fromPipe
			e.colname = clause.Ref.Prop
		case ExprVariableProp:
			e.fromType = fromVariable
			e.varname = clause.Ref.Ref
			e.colname = clause.Ref.Prop
		default:
			return internalErrorf("unknown kind of from reference")
		}
		if e.colname == "*" {
			return semanticErrorf("can not use `*' to reference a vertex id column")
		}
		return nil
	}

	e.fromType = fromInstant
	getters := &Getters{}
	for _, expr := range clause.VIDs {
		if expr.Kind == ExprFuncCall && strings.EqualFold(expr.Op, "near") {
			v, err := expr.Eval(getters)
			if err != nil {
				return err
			}
			vids, err := splitVIDList(v.S)
			if err != nil {
				return err
			}
			e.starts = append(e.starts, vids...)
			continue
		}
		v, err := expr.Eval(getters)
		if err != nil {
			return err
		}
		if !v.IsInt() {
			return semanticErrorf("vertex id should be of type integer")
		}
		e.starts = append(e.starts, VID(v.I))
	}
	return nil
}

// splitVIDList splits a comma-separated VID list, ignoring empty elements.
func splitVIDList(s string) ([]VID, error) {
	var vids []VID
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, semanticErrorf("vertex id should be of type integer")
		}
		vids = append(vids, VID(id))
	}
	return vids, nil
}

func (e *GoExecutor) prepareOverAll() error {
	names, err := e.ectx.Schema().GetAllEdges(e.space())
	if err != nil {
		return err
	}
	for _, name := range names {
		t, err := e.ectx.Schema().ToEdgeType(e.space(), name)
		if err != nil {
			return err
		}
		if e.reversely {
			t = -t
		}
		e.edgeTypes = append(e.edgeTypes, t)
		if !e.expCtx.AddEdge(name, t) {
			return semanticErrorf("edge alias(%s) was dup", name)
		}
	}
	return nil
}

func (e *GoExecutor) prepareOver() error {
	clause := e.sentence.Over
	if clause == nil {
		return internalErrorf("over clause shall never be null")
	}
	e.reversely = clause.Reversely
	if e.reversely {
		e.edgeHolder = NewEdgeHolder()
	}
	if clause.All {
		e.expCtx.SetOverAllEdge()
		return e.prepareOverAll()
	}
	for _, edge := range clause.Edges {
		t, err := e.ectx.Schema().ToEdgeType(e.space(), edge.Name)
		if err != nil {
			return err
		}
		if e.reversely {
			t = -t
		}
		e.edgeTypes = append(e.edgeTypes, t)
		alias := edge.Name
		if edge.Alias != "" {
			alias = edge.Alias
		}
		if !e.expCtx.AddEdge(alias, t) {
			return semanticErrorf("edge alias(%s) was dup", alias)
		}
	}
	return nil
}

func (e *GoExecutor) prepareWhere() error {
	e.where = newWhereWrapper(e.sentence.Where)
	return e.where.prepare(e.expCtx)
}

func (e *GoExecutor) prepareYield() error {
	wrapper := newYieldClauseWrapper(e.sentence.Yield)
	inputs := e.inputs
	if e.fromType == fromVariable {
		if v, ok := e.ectx.Vars().Get(e.varname); ok {
			inputs = v
		}
	}
	yields, err := wrapper.prepare(inputs, e.ectx.Vars())
	if err != nil {
		return err
	}
	for _, col := range yields {
		if col.FunName != "" {
			return syntaxErrorf("do not support aggregated query without group by")
		}
	}
	e.yields = yields
	return nil
}

func (e *GoExecutor) prepareNeededProps() error {
	for _, col := range e.yields {
		if err := col.Expr.Prepare(e.expCtx); err != nil {
			return err
		}
	}

	if e.expCtx.HasVariableProp() {
		if e.fromType != fromVariable {
			return semanticErrorf("a variable must be referred in FROM before used in WHERE or YIELD")
		}
		variables := e.expCtx.Variables()
		if len(variables) > 1 {
			return semanticErrorf("only one variable allowed to use")
		}
		for name := range variables {
			if name != e.varname {
				return semanticErrorf("variable name not match: `%s' vs. `%s'", name, e.varname)
			}
		}
	}

	if e.expCtx.HasInputProp() && e.fromType != fromPipe {
		return semanticErrorf("`$-' must be referred in FROM before used in WHERE or YIELD")
	}

	for _, tag := range e.expCtx.TagNames() {
		id, err := e.ectx.Schema().ToTagID(e.space(), tag)
		if err != nil {
			return semanticErrorf("tag `%s' not found", tag)
		}
		e.expCtx.SetTagID(tag, id)
	}
	return nil
}

func (e *GoExecutor) prepareDistinct() error {
	if clause := e.sentence.Yield; clause != nil {
		e.distinct = clause.Distinct
		// Distinct can only be pushed down when source-side and
		// destination-side dependencies don't coexist.
		e.distinctPushdown = !((e.expCtx.HasSrcTagProp() || e.expCtx.HasEdgeProp()) && e.expCtx.HasDstTagProp())
	}
	return nil
}

// ---------------------------------------------------------------------------
// Start-set resolution
// ---------------------------------------------------------------------------

func (e *GoExecutor) setupStarts() error {
	// Literal vertex ids.
	if len(e.starts) > 0 {
		return nil
	}
	inputs := e.inputs
	// Take one column from a variable.
	if e.fromType == fromVariable {
		varInputs, existing := e.ectx.Vars().Get(e.varname)
		if !existing {
			return semanticErrorf("variable `%s' not defined", e.varname)
		}
		inputs = varInputs
	}
	// No error happened, but we are having empty inputs.
	if inputs == nil || !inputs.HasData() {
		return nil
	}

	starts, err := inputs.GetVIDs(e.colname)
	if err != nil {
		e.ectx.Log().Error("get vid column failed", "column", e.colname, "error", err)
		return err
	}
	e.starts = starts

	index, err := inputs.BuildIndex(e.colname)
	if err != nil {
		return err
	}
	e.index = index
	return nil
}

func uniqueVIDs(in []VID) []VID {
	seen := make(map[VID]struct{}, len(in))
	out := in[:0]
	for _, v := range in {
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// ---------------------------------------------------------------------------
// Hop loop
// ---------------------------------------------------------------------------

func (e *GoExecutor) stepOut(ctx context.Context) {
	props, err := e.stepOutProps()
	if err != nil {
		e.doError(semanticErrorf("get step out props failed: %v", err))
		return
	}
	filter := ""
	if e.ectx.Config().FilterPushdown && e.isFinalStep() && !e.reversely {
		// Reverse traversal must evaluate the filter locally.
		filter = e.where.pushdown
	}
	starts := e.starts
	step := e.curStep
	e.ectx.Metrics().HopsTotal.Add(1)
	go func() {
		resp, rpcErr := e.ectx.Storage().GetNeighbors(ctx, e.space(), starts, e.edgeTypes, filter, props)
		e.ectx.Queue().Post(func() {
			if rpcErr != nil {
				e.doError(rpcErrorf("exception when handle out-bounds/in-bounds: %v", rpcErr))
				return
			}
			if !e.checkCompleteness(&resp.RpcStats, len(starts), step, "get neighbors") {
				return
			}
			e.onStepOutResponse(ctx, resp)
		})
	}()
}

// checkCompleteness applies the partial-failure policy: 0 is fatal,
// anything partial is logged and kept.
func (e *GoExecutor) checkCompleteness(stats *RpcStats, vertices int, step uint32, what string) bool {
	if stats.Completeness == 0 {
		e.doError(rpcErrorf("%s failed", what))
		return false
	}
	if stats.Completeness != 100 {
		// The execution was partially performed; the caller sees
		// best-effort semantics. Log and keep going.
		e.ectx.Metrics().PartialResponses.Add(1)
		e.ectx.Log().Warn("storage partially failed",
			"call", what, "completeness", stats.Completeness)
		for part, code := range stats.FailedParts {
			e.ectx.Log().Error("failed part", "part", part, "code", code)
		}
	}
	if e.ectx.Config().Trace {
		e.ectx.Log().Info("hop finished", "step", step, "vertices", vertices)
		for _, hl := range stats.HostLatency {
			e.ectx.Log().Info("host latency",
				"host", hl.Host, "latency_us", hl.LatencyUS, "results", hl.TotalResults)
		}
		if tl := e.ectx.Trace(); tl != nil {
			tl.Add(TraceEntry{
				QueryID:   e.ectx.QueryID(),
				Step:      step,
				Vertices:  vertices,
				Hosts:     stats.HostLatency,
				Timestamp: time.Now(),
			})
		}
	}
	return true
}

func (e *GoExecutor) onStepOutResponse(ctx context.Context, resp *QueryRpcResponse) {
	if e.isFinalStep() {
		e.maybeFinishExecution(ctx, resp)
		return
	}
	e.starts = e.dstIDs(resp)
	if len(e.starts) == 0 {
		e.onEmptyInputs()
		return
	}
	e.curStep++
	e.stepOut(ctx)
}

// dstIDs extracts the unique destination ids of a hop response. On
// non-final hops it also records the back-tracker lineage.
func (e *GoExecutor) dstIDs(resp *QueryRpcResponse) []VID {
	seen := make(map[VID]struct{})
	var out []VID
	for _, qr := range resp.Responses {
		for vi := range qr.Vertices {
			vdata := &qr.Vertices[vi]
			for _, edata := range vdata.EdgeData {
				for _, edge := range edata.Edges {
					if !e.isFinalStep() && e.backTracker != nil {
						e.backTracker.Add(vdata.VertexID, edge.Dst)
					}
					if _, dup := seen[edge.Dst]; dup {
						continue
					}
					seen[edge.Dst] = struct{}{}
					out = append(out, edge.Dst)
				}
			}
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Finalize
// ---------------------------------------------------------------------------

func (e *GoExecutor) maybeFinishExecution(ctx context.Context, resp *QueryRpcResponse) {
	requireDstProps := e.expCtx.HasDstTagProp()
	requireEdgeProps := e.expCtx.HasEdgeProp()

	// Forward traversal with no properties required on destination nodes,
	// or reverse traversal with neither edge nor destination properties
	// required: project directly. Note that `dst' in a reverse traversal
	// is the `src' of the forward edge.
	if (!requireDstProps && !e.reversely) ||
		(e.reversely && !requireDstProps && !requireEdgeProps &&
			!(e.expCtx.IsOverAllEdge() && len(e.yields) == 0)) {
		e.finishExecution(resp)
		return
	}

	dstIDs := e.dstIDs(resp)
	// Reaching the dead end.
	if len(dstIDs) == 0 {
		e.onEmptyInputs()
		return
	}

	// Only properties on destination nodes required.
	if !e.reversely || (requireDstProps && !requireEdgeProps) {
		e.fetchVertexProps(ctx, dstIDs, resp)
		return
	}

	e.fetchEdgeProps(ctx, dstIDs, resp)
}

// fetchEdgeProps issues the reverse-mode second round-trip: the first
// query flowed from the reverse direction, so the forward edge rows are
// fetched now, keyed by the rank decoded from the hop response.
func (e *GoExecutor) fetchEdgeProps(ctx context.Context, dstIDs []VID, stepResp *QueryRpcResponse) {
	edgeKeys := make(map[EdgeType][]EdgeKey)
	for _, qr := range stepResp.Responses {
		for vi := range qr.Vertices {
			vdata := &qr.Vertices[vi]
			for _, edata := range vdata.EdgeData {
				var schema *Schema
				if len(qr.EdgeSchema) > 0 {
					schema = qr.EdgeSchema[edata.Type]
				}
				if schema == nil {
					continue
				}
				for _, edge := range edata.Edges {
					rank, err := DecodeField(schema, edge.Props, PropRank)
					if err != nil {
						e.doError(dataErrorf("get rank error when go reversely"))
						return
					}
					t := edata.Type.Abs()
					edgeKeys[t] = append(edgeKeys[t], EdgeKey{
						Src:  edge.Dst,
						Dst:  vdata.VertexID,
						Type: t,
						Rank: EdgeRank(rank.I),
					})
				}
			}
		}
	}

	edgeProps := make(map[EdgeType][]PropDef)
	for _, prop := range e.expCtx.AliasProps() {
		t, ok := e.expCtx.EdgeType(prop.Edge)
		if !ok {
			e.doError(semanticErrorf("no schema found for `%s'", prop.Edge))
			return
		}
		t = t.Abs()
		edgeProps[t] = append(edgeProps[t], PropDef{
			Owner:    OwnerEdge,
			Name:     prop.Prop,
			EdgeType: t,
		})
	}

	types := make([]EdgeType, 0, len(edgeKeys))
	for t := range edgeKeys {
		types = append(types, t)
	}

	// One call per positive edge type, in parallel; any failed leg fails
	// the query.
	results := make([]*EdgePropRpcResponse, len(types))
	errs := make([]error, len(types))
	var wg sync.WaitGroup
	for i, t := range types {
		wg.Add(1)
		go func(i int, t EdgeType) {
			defer wg.Done()
			results[i], errs[i] = e.ectx.Storage().GetEdgeProps(ctx, e.space(), edgeKeys[t], edgeProps[t])
		}(i, t)
	}
	go func() {
		wg.Wait()
		e.ectx.Queue().Post(func() {
			for i := range types {
				if errs[i] != nil {
					e.ectx.Log().Error("get edge props failed", "error", errs[i])
					e.doError(rpcErrorf("exception when get edge props in reverse traversal: %v", errs[i]))
					return
				}
				for _, resp := range results[i].Responses {
					if err := e.edgeHolder.Add(resp); err != nil {
						e.ectx.Log().Error("error when handle edges", "error", err)
						e.doError(err)
						return
					}
				}
			}
			if e.expCtx.HasDstTagProp() {
				e.fetchVertexProps(ctx, dstIDs, stepResp)
				return
			}
			e.finishExecution(stepResp)
		})
	}()
}

func (e *GoExecutor) fetchVertexProps(ctx context.Context, ids []VID, stepResp *QueryRpcResponse) {
	props, err := e.dstProps()
	if err != nil {
		e.doError(err)
		return
	}
	step := e.curStep
	go func() {
		resp, rpcErr := e.ectx.Storage().GetVertexProps(ctx, e.space(), ids, props)
		e.ectx.Queue().Post(func() {
			if rpcErr != nil {
				e.doError(rpcErrorf("exception when get vertex in go: %v", rpcErr))
				return
			}
			if !e.checkCompleteness(&resp.RpcStats, len(ids), step, "get dest props") {
				return
			}
			if e.vertexHolder == nil {
				e.vertexHolder = NewVertexHolder()
			}
			for _, qr := range resp.Responses {
				e.vertexHolder.Add(qr)
			}
			e.finishExecution(stepResp)
		})
	}()
}

// ---------------------------------------------------------------------------
// Step-out property selection
// ---------------------------------------------------------------------------

// stepOutProps computes the property set requested from storage for the
// current hop. Intermediate hops only need `_DST' to advance.
func (e *GoExecutor) stepOutProps() ([]PropDef, error) {
	var props []PropDef
	for _, t := range e.edgeTypes {
		props = append(props, PropDef{Owner: OwnerEdge, Name: PropDst, EdgeType: t})
		// We need the ranking when going reversely in the final step,
		// because we have to fetch the corresponding forward edges.
		if e.isFinalStep() && e.reversely {
			props = append(props, PropDef{Owner: OwnerEdge, Name: PropRank, EdgeType: t})
		}
	}
	if !e.isFinalStep() {
		return props, nil
	}

	for _, tp := range e.expCtx.SrcTagProps() {
		id, err := e.ectx.Schema().ToTagID(e.space(), tp.Tag)
		if err != nil {
			return nil, semanticErrorf("no schema found for `%s'", tp.Tag)
		}
		props = append(props, PropDef{Owner: OwnerSource, Name: tp.Prop, TagID: id})
	}

	if e.reversely {
		// Edge properties flow in through the second round-trip.
		return props, nil
	}
	for _, prop := range e.expCtx.AliasProps() {
		if prop.Prop == PropDst {
			continue
		}
		t, ok := e.expCtx.EdgeType(prop.Edge)
		if !ok {
			return nil, semanticErrorf("the edge was not found `%s'", prop.Edge)
		}
		props = append(props, PropDef{Owner: OwnerEdge, Name: prop.Prop, EdgeType: t})
	}
	return props, nil
}

func (e *GoExecutor) dstProps() ([]PropDef, error) {
	var props []PropDef
	for _, tp := range e.expCtx.DstTagProps() {
		id, err := e.ectx.Schema().ToTagID(e.space(), tp.Tag)
		if err != nil {
			return nil, semanticErrorf("no schema found for `%s'", tp.Tag)
		}
		props = append(props, PropDef{Owner: OwnerDest, Name: tp.Prop, TagID: id})
	}
	return props, nil
}

// ---------------------------------------------------------------------------
// Projection
// ---------------------------------------------------------------------------

func (e *GoExecutor) edgeNames() ([]string, error) {
	names := make([]string, 0, len(e.edgeTypes))
	for _, t := range e.edgeTypes {
		name, err := e.ectx.Schema().ToEdgeName(e.space(), t.Abs())
		if err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, nil
}

func (e *GoExecutor) finishExecution(resp *QueryRpcResponse) {
	// OVER * without an explicit YIELD projects every edge's `_dst'.
	if e.expCtx.IsOverAllEdge() && len(e.yields) == 0 {
		names, err := e.edgeNames()
		if err != nil || len(names) == 0 {
			e.doError(semanticErrorf("get edge name failed"))
			return
		}
		for _, name := range names {
			e.yields = append(e.yields, &YieldColumn{
				Expr: &Expression{Kind: ExprEdgeDstID, Ref: name},
			})
		}
	}

	if e.onResult != nil {
		out, err := e.setupInterimResult(resp)
		if err != nil {
			e.doError(err)
			return
		}
		e.onResult(out)
	} else {
		start := time.Now()
		e.resp = &ExecutionResponse{ColumnNames: e.resultColumnNames()}
		rows, err := e.toResponseRows(resp)
		if err != nil {
			e.doError(err)
			return
		}
		e.resp.Rows = rows
		if e.ectx.Config().Trace {
			e.ectx.Log().Info("processed final result",
				"rows", len(rows), "took_us", time.Since(start).Microseconds())
		}
	}
	e.doFinish()
}

func (e *GoExecutor) resultColumnNames() []string {
	names := make([]string, 0, len(e.yields))
	for _, col := range e.yields {
		names = append(names, col.Name())
	}
	return names
}

// processFinalResult walks every edge record of the final response,
// applies the filter, evaluates the yields and feeds each surviving
// record to cb.
func (e *GoExecutor) processFinalResult(resp *QueryRpcResponse, cb func(record []Value, colTypes []SupportedType) error) error {
	colTypes := make([]SupportedType, len(e.yields))
	for i, col := range e.yields {
		colTypes[i] = e.exprType(col.Expr)
	}

	var uniq map[uint64]struct{}
	if e.distinct {
		uniq = make(map[uint64]struct{})
	}
	limit := rowCap{max: e.ectx.Config().MaxResultRows}

	for _, qr := range resp.Responses {
		tagSchemas := qr.VertexSchema
		edgeSchemas := qr.EdgeSchema
		for vi := range qr.Vertices {
			vdata := &qr.Vertices[vi]
			for di := range vdata.EdgeData {
				edata := &vdata.EdgeData[di]
				var currEdgeSchema *Schema
				if len(edgeSchemas) > 0 {
					currEdgeSchema = edgeSchemas[edata.Type]
				}
				for ei := range edata.Edges {
					edge := &edata.Edges[ei]
					getters := e.makeGetters(vdata, edge, edata.Type, currEdgeSchema, tagSchemas, edgeSchemas)

					if e.where.filter != nil {
						v, err := e.where.filter.Eval(getters)
						if err != nil {
							return err
						}
						if !v.AsBool() {
							continue
						}
					}

					record := make([]Value, 0, len(e.yields))
					for _, col := range e.yields {
						v, err := col.Expr.Eval(getters)
						if err != nil {
							return err
						}
						record = append(record, v)
					}

					if e.distinct {
						h := hashRecord(record)
						if _, dup := uniq[h]; dup {
							continue
						}
						uniq[h] = struct{}{}
					}
					if err := limit.bump(); err != nil {
						return err
					}
					if err := cb(record, colTypes); err != nil {
						return err
					}
					e.ectx.Metrics().RowsEmitted.Add(1)
				}
			}
		}
	}
	return nil
}

// makeGetters builds the per-record lookup bundle. It holds only the data
// the current edge record needs and never outlives the continuation.
func (e *GoExecutor) makeGetters(vdata *VertexData, edge *EdgeRecord, edgeType EdgeType,
	currEdgeSchema *Schema, tagSchemas map[TagID]*Schema, edgeSchemas map[EdgeType]*Schema) *Getters {

	srcID := vdata.VertexID
	dstID := edge.Dst

	matchEdge := func(edgeName string) (bool, error) {
		if len(e.edgeTypes) <= 1 {
			return true, nil
		}
		t, ok := e.expCtx.EdgeType(edgeName)
		if !ok {
			return false, semanticErrorf("get edge type for `%s' failed in getters", edgeName)
		}
		return t == edgeType, nil
	}

	g := &Getters{}

	g.GetEdgeDstID = func(edgeName string) (Value, error) {
		match, err := matchEdge(edgeName)
		if err != nil {
			return Value{}, err
		}
		if !match {
			return IntValue(0), nil
		}
		if e.reversely {
			return IntValue(int64(srcID)), nil
		}
		return IntValue(int64(dstID)), nil
	}

	g.GetEdgeSrcID = func(edgeName string) (Value, error) {
		match, err := matchEdge(edgeName)
		if err != nil {
			return Value{}, err
		}
		if !match {
			return IntValue(0), nil
		}
		if e.reversely {
			return IntValue(int64(dstID)), nil
		}
		return IntValue(int64(srcID)), nil
	}

	g.GetEdgeRank = func(edgeName string) (Value, error) {
		match, err := matchEdge(edgeName)
		if err != nil {
			return Value{}, err
		}
		if !match {
			return IntValue(0), nil
		}
		return IntValue(int64(edge.Rank)), nil
	}

	g.GetEdgeTypeNum = func(edgeName string) (Value, error) {
		match, err := matchEdge(edgeName)
		if err != nil {
			return Value{}, err
		}
		if !match {
			return IntValue(0), nil
		}
		return IntValue(int64(edgeType.Abs())), nil
	}

	g.GetSrcTagProp = func(tag, prop string) (Value, error) {
		tid, ok := e.expCtx.TagID(tag)
		if !ok {
			return Value{}, semanticErrorf("get tag id for `%s' failed in getters", tag)
		}
		for _, td := range vdata.TagData {
			if td.TagID != tid {
				continue
			}
			schema, ok := tagSchemas[tid]
			if !ok {
				return Value{}, dataErrorf("no schema for tag `%s' in response", tag)
			}
			v, err := DecodeField(schema, td.Data, prop)
			if err != nil {
				return Value{}, dataErrorf("get prop(%s.%s) failed", tag, prop)
			}
			return v, nil
		}
		// The source vertex doesn't carry the tag; fall back to the
		// tag schema's default.
		ts, err := e.ectx.Schema().GetTagSchema(e.space(), tid)
		if err != nil {
			return Value{}, semanticErrorf("no tag schema for `%s'", tag)
		}
		return ts.Default(prop)
	}

	g.GetDstTagProp = func(tag, prop string) (Value, error) {
		tid, ok := e.expCtx.TagID(tag)
		if !ok {
			return Value{}, semanticErrorf("get tag id for `%s' failed in getters", tag)
		}
		if e.vertexHolder == nil {
			return Value{}, internalErrorf("dest props referenced but never fetched")
		}
		return e.vertexHolder.Get(dstID, tid, prop)
	}

	g.GetAliasProp = func(edgeName, prop string) (Value, error) {
		t, ok := e.expCtx.EdgeType(edgeName)
		if !ok {
			return Value{}, semanticErrorf("get edge type for `%s' failed in getters", edgeName)
		}
		if e.reversely {
			if t != edgeType {
				return e.edgeHolder.GetDefaultProp(t.Abs(), prop)
			}
			return e.edgeHolder.Get(dstID, srcID, edgeType.Abs(), prop)
		}
		if t != edgeType {
			schema, ok := edgeSchemas[t]
			if !ok {
				e.ectx.Log().Error("can't find schema", "edge", edgeName)
				return Value{}, dataErrorf("get schema failed")
			}
			return schema.Default(prop)
		}
		if currEdgeSchema == nil {
			return Value{}, dataErrorf("no schema for edge `%s' in response", edgeName)
		}
		v, err := DecodeField(currEdgeSchema, edge.Props, prop)
		if err != nil {
			e.ectx.Log().Error("can't get prop", "prop", prop, "edge", edgeName)
			return Value{}, dataErrorf("get prop(%s.%s) failed", edgeName, prop)
		}
		return v, nil
	}

	g.GetVariableProp = func(prop string) (Value, error) {
		return e.propFromInterim(srcID, prop)
	}

	g.GetInputProp = func(prop string) (Value, error) {
		return e.propFromInterim(srcID, prop)
	}

	return g
}

// propFromInterim looks up a prior-stage column for the start vertex the
// current record traces back to.
func (e *GoExecutor) propFromInterim(id VID, prop string) (Value, error) {
	root := id
	if e.backTracker != nil {
		root = e.backTracker.Get(id)
	}
	if e.index == nil {
		return Value{}, internalErrorf("input prop referenced without an input index")
	}
	return e.index.GetColumnWithVID(root, prop)
}

// ---------------------------------------------------------------------------
// Output modes
// ---------------------------------------------------------------------------

// toResponseRows materializes the terminal response rows, selecting each
// column's wire type from the inferred SupportedType and falling back to
// the value's runtime kind.
func (e *GoExecutor) toResponseRows(resp *QueryRpcResponse) ([]Row, error) {
	var rows []Row
	err := e.processFinalResult(resp, func(record []Value, colTypes []SupportedType) error {
		row := Row{Columns: make([]ColumnValue, 0, len(record))}
		for i, v := range record {
			cv, err := toColumnValue(v, colTypes[i])
			if err != nil {
				return err
			}
			row.Columns = append(row.Columns, cv)
		}
		rows = append(rows, row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func toColumnValue(v Value, t SupportedType) (ColumnValue, error) {
	switch t {
	case TypeBool:
		if v.IsBool() {
			return ColumnValue{Kind: ColBool, Bool: v.B}, nil
		}
	case TypeInt:
		if v.IsInt() {
			return ColumnValue{Kind: ColInteger, Integer: v.I}, nil
		}
	case TypeVID:
		if v.IsInt() {
			return ColumnValue{Kind: ColID, ID: VID(v.I)}, nil
		}
	case TypeTimestamp:
		if v.IsInt() {
			return ColumnValue{Kind: ColTimestamp, Timestamp: v.I}, nil
		}
	case TypeDouble:
		if isNumeric(v) {
			return ColumnValue{Kind: ColDouble, Double: v.AsFloat()}, nil
		}
	case TypeFloat:
		if isNumeric(v) {
			return ColumnValue{Kind: ColSingle, Single: float32(v.AsFloat())}, nil
		}
	case TypeString:
		if v.Kind == ValueStr {
			return ColumnValue{Kind: ColStr, Str: v.S}, nil
		}
	}
	// Fall back to the runtime kind of the value.
	switch v.Kind {
	case ValueBool:
		return ColumnValue{Kind: ColBool, Bool: v.B}, nil
	case ValueInt:
		return ColumnValue{Kind: ColInteger, Integer: v.I}, nil
	case ValueFloat:
		return ColumnValue{Kind: ColDouble, Double: v.F}, nil
	case ValueStr:
		return ColumnValue{Kind: ColStr, Str: v.S}, nil
	default:
		return ColumnValue{}, internalErrorf("unknown value kind %d", v.Kind)
	}
}

// setupInterimResult materializes the projection for the downstream
// executor. The schema is inferred from the first yielded row.
func (e *GoExecutor) setupInterimResult(resp *QueryRpcResponse) (*InterimResult, error) {
	result := NewInterimResult(e.resultColumnNames())
	var schema *Schema
	var rows [][]byte

	err := e.processFinalResult(resp, func(record []Value, colTypes []SupportedType) error {
		if schema == nil {
			if len(record) != len(colTypes) {
				return internalErrorf("record size %d != column type size %d", len(record), len(colTypes))
			}
			inferred, err := inferSchema(e.resultColumnNames(), record, colTypes)
			if err != nil {
				return err
			}
			schema = inferred
		}
		row, err := EncodeRow(schema, record)
		if err != nil {
			return err
		}
		rows = append(rows, row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if schema != nil {
		result.SetInterim(schema, rows)
	}
	return result, nil
}

// inferSchema computes the interim schema: the declared column type where
// inference produced one, else the runtime kind of the first row's value.
func inferSchema(colNames []string, record []Value, colTypes []SupportedType) (*Schema, error) {
	s := NewSchema()
	for i, t := range colTypes {
		if t == TypeUnknown {
			switch record[i].Kind {
			case ValueBool:
				t = TypeBool
			case ValueInt:
				t = TypeInt
			case ValueFloat:
				t = TypeDouble
			case ValueStr:
				t = TypeString
			default:
				return nil, internalErrorf("cannot infer type for column `%s'", colNames[i])
			}
		}
		s.Append(colNames[i], t)
	}
	return s, nil
}

func (e *GoExecutor) onEmptyInputs() {
	names := e.resultColumnNames()
	if e.onResult != nil {
		e.onResult(NewInterimResult(names))
	} else if e.resp == nil {
		e.resp = &ExecutionResponse{ColumnNames: names}
	}
	e.doFinish()
}

// ---------------------------------------------------------------------------
// Column-type inference
// ---------------------------------------------------------------------------

func (e *GoExecutor) exprType(expr *Expression) SupportedType {
	switch expr.Kind {
	case ExprLiteral, ExprFuncCall, ExprUnary, ExprArithmetic:
		return TypeUnknown
	case ExprTypeCast:
		return expr.CastType
	case ExprRelational, ExprLogical:
		return TypeBool
	case ExprSourceProp, ExprDestProp:
		if id, err := e.ectx.Schema().ToTagID(e.space(), expr.Ref); err == nil {
			if ts, err := e.ectx.Schema().GetTagSchema(e.space(), id); err == nil {
				return ts.FieldType(expr.Prop)
			}
		}
		return TypeUnknown
	case ExprEdgeDstID, ExprEdgeSrcID:
		return TypeVID
	case ExprEdgeRank, ExprEdgeTypeName:
		return TypeInt
	case ExprAliasProp:
		if t, err := e.ectx.Schema().ToEdgeType(e.space(), expr.Ref); err == nil {
			if es, err := e.ectx.Schema().GetEdgeSchema(e.space(), t); err == nil {
				return es.FieldType(expr.Prop)
			}
		}
		return TypeUnknown
	case ExprVariableProp, ExprInputProp:
		if e.index != nil {
			return e.index.GetColumnType(expr.Prop)
		}
		return TypeUnknown
	default:
		return TypeUnknown
	}
}

package hopdb

import (
	"fmt"
	"math"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// ---------------------------------------------------------------------------
// Expression tree
//
// The parser (a collaborator of this module) produces Expression trees;
// the executor prepares them against an ExprContext and evaluates them per
// edge record through a Getters bundle.
// ---------------------------------------------------------------------------

// ExprKind discriminates expression variants. Dispatch is by tag, not by
// an inheritance hierarchy.
type ExprKind uint8

const (
	ExprLiteral ExprKind = iota + 1
	ExprUnary
	ExprArithmetic
	ExprRelational
	ExprLogical
	ExprFuncCall
	ExprTypeCast
	ExprEdgeDstID
	ExprEdgeSrcID
	ExprEdgeRank
	ExprEdgeTypeName
	ExprSourceProp
	ExprDestProp
	ExprAliasProp
	ExprVariableProp
	ExprInputProp
)

// Expression is one node of an expression tree. Which fields are meaningful
// depends on Kind:
//
//	ExprLiteral       Lit
//	ExprUnary         Op ("!", "-"), Left
//	ExprArithmetic    Op ("+","-","*","/","%"), Left, Right
//	ExprRelational    Op ("==","!=","<","<=",">",">="), Left, Right
//	ExprLogical       Op ("&&","||","^"), Left, Right
//	ExprFuncCall      Op (function name), Args
//	ExprTypeCast      CastType, Left
//	ExprEdgeDstID     Ref (edge name)
//	ExprEdgeSrcID     Ref (edge name)
//	ExprEdgeRank      Ref (edge name)
//	ExprEdgeTypeName  Ref (edge name)
//	ExprSourceProp    Ref (tag name), Prop
//	ExprDestProp      Ref (tag name), Prop
//	ExprAliasProp     Ref (edge alias), Prop
//	ExprVariableProp  Ref (variable name), Prop
//	ExprInputProp     Prop
type Expression struct {
	Kind     ExprKind      `msgpack:"kind"`
	Lit      Value         `msgpack:"lit"`
	Op       string        `msgpack:"op"`
	Left     *Expression   `msgpack:"left"`
	Right    *Expression   `msgpack:"right"`
	Args     []*Expression `msgpack:"args"`
	CastType SupportedType `msgpack:"cast"`
	Ref      string        `msgpack:"ref"`
	Prop     string        `msgpack:"prop"`
}

// Getters supplies the per-record lookup capabilities an expression needs.
// A bundle holds only what the current edge record requires; it never
// retains the executor past the continuation that built it.
type Getters struct {
	GetEdgeDstID    func(edgeName string) (Value, error)
	GetEdgeSrcID    func(edgeName string) (Value, error)
	GetEdgeRank     func(edgeName string) (Value, error)
	GetEdgeTypeNum  func(edgeName string) (Value, error)
	GetSrcTagProp   func(tag, prop string) (Value, error)
	GetDstTagProp   func(tag, prop string) (Value, error)
	GetAliasProp    func(edge, prop string) (Value, error)
	GetVariableProp func(prop string) (Value, error)
	GetInputProp    func(prop string) (Value, error)
}

// Prepare walks the tree and registers every referenced property in the
// expression context. It must run before Eval.
func (e *Expression) Prepare(ctx *ExprContext) error {
	if e == nil {
		return nil
	}
	switch e.Kind {
	case ExprLiteral:
		return nil
	case ExprUnary, ExprTypeCast:
		return e.Left.Prepare(ctx)
	case ExprArithmetic, ExprRelational, ExprLogical:
		if err := e.Left.Prepare(ctx); err != nil {
			return err
		}
		return e.Right.Prepare(ctx)
	case ExprFuncCall:
		for _, a := range e.Args {
			if err := a.Prepare(ctx); err != nil {
				return err
			}
		}
		return nil
	case ExprEdgeDstID, ExprEdgeSrcID, ExprEdgeRank, ExprEdgeTypeName:
		return nil
	case ExprSourceProp:
		ctx.addSrcTagProp(e.Ref, e.Prop)
		return nil
	case ExprDestProp:
		ctx.addDstTagProp(e.Ref, e.Prop)
		return nil
	case ExprAliasProp:
		ctx.addAliasProp(e.Ref, e.Prop)
		return nil
	case ExprVariableProp:
		ctx.addVariableProp(e.Ref, e.Prop)
		return nil
	case ExprInputProp:
		ctx.addInputProp(e.Prop)
		return nil
	default:
		return internalErrorf("unknown expression kind %d", e.Kind)
	}
}

// Eval computes the expression's value through the getter bundle.
func (e *Expression) Eval(g *Getters) (Value, error) {
	switch e.Kind {
	case ExprLiteral:
		return e.Lit, nil
	case ExprUnary:
		return e.evalUnary(g)
	case ExprArithmetic:
		return e.evalArithmetic(g)
	case ExprRelational:
		return e.evalRelational(g)
	case ExprLogical:
		return e.evalLogical(g)
	case ExprFuncCall:
		return e.evalFuncCall(g)
	case ExprTypeCast:
		return e.evalTypeCast(g)
	case ExprEdgeDstID:
		return callGetter(g.GetEdgeDstID, e.Ref, "edge dst id")
	case ExprEdgeSrcID:
		return callGetter(g.GetEdgeSrcID, e.Ref, "edge src id")
	case ExprEdgeRank:
		return callGetter(g.GetEdgeRank, e.Ref, "edge rank")
	case ExprEdgeTypeName:
		return callGetter(g.GetEdgeTypeNum, e.Ref, "edge type")
	case ExprSourceProp:
		return callPropGetter(g.GetSrcTagProp, e.Ref, e.Prop, "source tag prop")
	case ExprDestProp:
		return callPropGetter(g.GetDstTagProp, e.Ref, e.Prop, "dest tag prop")
	case ExprAliasProp:
		return callPropGetter(g.GetAliasProp, e.Ref, e.Prop, "edge prop")
	case ExprVariableProp:
		if g == nil || g.GetVariableProp == nil {
			return Value{}, semanticErrorf("variable prop `$%s.%s' not allowed here", e.Ref, e.Prop)
		}
		return g.GetVariableProp(e.Prop)
	case ExprInputProp:
		if g == nil || g.GetInputProp == nil {
			return Value{}, semanticErrorf("input prop `$-.%s' not allowed here", e.Prop)
		}
		return g.GetInputProp(e.Prop)
	default:
		return Value{}, internalErrorf("unknown expression kind %d", e.Kind)
	}
}

func callGetter(fn func(string) (Value, error), ref, what string) (Value, error) {
	if fn == nil {
		return Value{}, semanticErrorf("%s not allowed here", what)
	}
	return fn(ref)
}

func callPropGetter(fn func(string, string) (Value, error), ref, prop, what string) (Value, error) {
	if fn == nil {
		return Value{}, semanticErrorf("%s not allowed here", what)
	}
	return fn(ref, prop)
}

func (e *Expression) evalUnary(g *Getters) (Value, error) {
	v, err := e.Left.Eval(g)
	if err != nil {
		return Value{}, err
	}
	switch e.Op {
	case "!":
		return BoolValue(!v.AsBool()), nil
	case "-":
		switch v.Kind {
		case ValueInt:
			return IntValue(-v.I), nil
		case ValueFloat:
			return FloatValue(-v.F), nil
		}
		return Value{}, semanticErrorf("unary `-' on non-numeric value")
	default:
		return Value{}, semanticErrorf("unknown unary operator `%s'", e.Op)
	}
}

func (e *Expression) evalArithmetic(g *Getters) (Value, error) {
	l, err := e.Left.Eval(g)
	if err != nil {
		return Value{}, err
	}
	r, err := e.Right.Eval(g)
	if err != nil {
		return Value{}, err
	}
	if e.Op == "+" && (l.Kind == ValueStr || r.Kind == ValueStr) {
		if l.Kind == ValueStr && r.Kind == ValueStr {
			return StrValue(l.S + r.S), nil
		}
		return Value{}, semanticErrorf("`+' between string and non-string")
	}
	if !isNumeric(l) || !isNumeric(r) {
		return Value{}, semanticErrorf("arithmetic `%s' on non-numeric operands", e.Op)
	}
	// Mixed int/float promotes to float.
	if l.Kind == ValueFloat || r.Kind == ValueFloat {
		lf, rf := l.AsFloat(), r.AsFloat()
		switch e.Op {
		case "+":
			return FloatValue(lf + rf), nil
		case "-":
			return FloatValue(lf - rf), nil
		case "*":
			return FloatValue(lf * rf), nil
		case "/":
			if rf == 0 {
				return Value{}, semanticErrorf("division by zero")
			}
			return FloatValue(lf / rf), nil
		case "%":
			if rf == 0 {
				return Value{}, semanticErrorf("division by zero")
			}
			return FloatValue(math.Mod(lf, rf)), nil
		}
	}
	switch e.Op {
	case "+":
		return IntValue(l.I + r.I), nil
	case "-":
		return IntValue(l.I - r.I), nil
	case "*":
		return IntValue(l.I * r.I), nil
	case "/":
		if r.I == 0 {
			return Value{}, semanticErrorf("division by zero")
		}
		return IntValue(l.I / r.I), nil
	case "%":
		if r.I == 0 {
			return Value{}, semanticErrorf("division by zero")
		}
		return IntValue(l.I % r.I), nil
	}
	return Value{}, semanticErrorf("unknown arithmetic operator `%s'", e.Op)
}

func (e *Expression) evalRelational(g *Getters) (Value, error) {
	l, err := e.Left.Eval(g)
	if err != nil {
		return Value{}, err
	}
	r, err := e.Right.Eval(g)
	if err != nil {
		return Value{}, err
	}
	cmp, err := compareValues(l, r)
	if err != nil {
		return Value{}, err
	}
	switch e.Op {
	case "==":
		return BoolValue(cmp == 0), nil
	case "!=":
		return BoolValue(cmp != 0), nil
	case "<":
		return BoolValue(cmp < 0), nil
	case "<=":
		return BoolValue(cmp <= 0), nil
	case ">":
		return BoolValue(cmp > 0), nil
	case ">=":
		return BoolValue(cmp >= 0), nil
	default:
		return Value{}, semanticErrorf("unknown relational operator `%s'", e.Op)
	}
}

// compareValues orders two values of compatible kinds; int and float
// cross-compare numerically.
func compareValues(l, r Value) (int, error) {
	if isNumeric(l) && isNumeric(r) {
		lf, rf := l.AsFloat(), r.AsFloat()
		switch {
		case lf < rf:
			return -1, nil
		case lf > rf:
			return 1, nil
		default:
			return 0, nil
		}
	}
	if l.Kind == ValueStr && r.Kind == ValueStr {
		return strings.Compare(l.S, r.S), nil
	}
	if l.Kind == ValueBool && r.Kind == ValueBool {
		switch {
		case l.B == r.B:
			return 0, nil
		case r.B:
			return -1, nil
		default:
			return 1, nil
		}
	}
	return 0, semanticErrorf("cannot compare %v with %v", l.Kind, r.Kind)
}

func (e *Expression) evalLogical(g *Getters) (Value, error) {
	l, err := e.Left.Eval(g)
	if err != nil {
		return Value{}, err
	}
	switch e.Op {
	case "&&":
		if !l.AsBool() {
			return BoolValue(false), nil
		}
	case "||":
		if l.AsBool() {
			return BoolValue(true), nil
		}
	}
	r, err := e.Right.Eval(g)
	if err != nil {
		return Value{}, err
	}
	switch e.Op {
	case "&&", "||":
		return BoolValue(r.AsBool()), nil
	case "^":
		return BoolValue(l.AsBool() != r.AsBool()), nil
	default:
		return Value{}, semanticErrorf("unknown logical operator `%s'", e.Op)
	}
}

func (e *Expression) evalTypeCast(g *Getters) (Value, error) {
	v, err := e.Left.Eval(g)
	if err != nil {
		return Value{}, err
	}
	switch e.CastType {
	case TypeInt, TypeVID, TypeTimestamp:
		switch v.Kind {
		case ValueInt:
			return v, nil
		case ValueFloat:
			return IntValue(int64(v.F)), nil
		case ValueBool:
			if v.B {
				return IntValue(1), nil
			}
			return IntValue(0), nil
		}
	case TypeFloat, TypeDouble:
		if isNumeric(v) {
			return FloatValue(v.AsFloat()), nil
		}
	case TypeBool:
		return BoolValue(v.AsBool()), nil
	case TypeString:
		return StrValue(v.String()), nil
	}
	return Value{}, semanticErrorf("cannot cast %v to %s", v.Kind, e.CastType)
}

// Fixed builtin set. `near' is handled specially by FROM preparation; its
// generic evaluation returns the argument string unchanged.
func (e *Expression) evalFuncCall(g *Getters) (Value, error) {
	args := make([]Value, len(e.Args))
	for i, a := range e.Args {
		v, err := a.Eval(g)
		if err != nil {
			return Value{}, err
		}
		args[i] = v
	}
	name := strings.ToLower(e.Op)
	switch name {
	case "near":
		if len(args) != 1 || args[0].Kind != ValueStr {
			return Value{}, semanticErrorf("near() expects one string argument")
		}
		return args[0], nil
	case "abs":
		if len(args) != 1 || !isNumeric(args[0]) {
			return Value{}, semanticErrorf("abs() expects one numeric argument")
		}
		if args[0].Kind == ValueInt {
			if args[0].I < 0 {
				return IntValue(-args[0].I), nil
			}
			return args[0], nil
		}
		return FloatValue(math.Abs(args[0].F)), nil
	case "floor":
		if len(args) != 1 || !isNumeric(args[0]) {
			return Value{}, semanticErrorf("floor() expects one numeric argument")
		}
		return FloatValue(math.Floor(args[0].AsFloat())), nil
	case "ceil":
		if len(args) != 1 || !isNumeric(args[0]) {
			return Value{}, semanticErrorf("ceil() expects one numeric argument")
		}
		return FloatValue(math.Ceil(args[0].AsFloat())), nil
	case "sqrt":
		if len(args) != 1 || !isNumeric(args[0]) {
			return Value{}, semanticErrorf("sqrt() expects one numeric argument")
		}
		return FloatValue(math.Sqrt(args[0].AsFloat())), nil
	case "pow":
		if len(args) != 2 || !isNumeric(args[0]) || !isNumeric(args[1]) {
			return Value{}, semanticErrorf("pow() expects two numeric arguments")
		}
		return FloatValue(math.Pow(args[0].AsFloat(), args[1].AsFloat())), nil
	case "strcasecmp":
		if len(args) != 2 || args[0].Kind != ValueStr || args[1].Kind != ValueStr {
			return Value{}, semanticErrorf("strcasecmp() expects two string arguments")
		}
		return IntValue(int64(strings.Compare(strings.ToLower(args[0].S), strings.ToLower(args[1].S)))), nil
	case "lower":
		if len(args) != 1 || args[0].Kind != ValueStr {
			return Value{}, semanticErrorf("lower() expects one string argument")
		}
		return StrValue(strings.ToLower(args[0].S)), nil
	case "upper":
		if len(args) != 1 || args[0].Kind != ValueStr {
			return Value{}, semanticErrorf("upper() expects one string argument")
		}
		return StrValue(strings.ToUpper(args[0].S)), nil
	case "length":
		if len(args) != 1 || args[0].Kind != ValueStr {
			return Value{}, semanticErrorf("length() expects one string argument")
		}
		return IntValue(int64(len(args[0].S))), nil
	case "udf_is_in":
		if len(args) < 2 {
			return Value{}, semanticErrorf("udf_is_in() expects at least two arguments")
		}
		for _, candidate := range args[1:] {
			cmp, err := compareValues(args[0], candidate)
			if err == nil && cmp == 0 {
				return BoolValue(true), nil
			}
		}
		return BoolValue(false), nil
	default:
		return Value{}, semanticErrorf("unknown function `%s'", e.Op)
	}
}

func isNumeric(v Value) bool { return v.Kind == ValueInt || v.Kind == ValueFloat }

// String renders the expression's textual form, used for default column
// names and log output.
func (e *Expression) String() string {
	if e == nil {
		return ""
	}
	switch e.Kind {
	case ExprLiteral:
		if e.Lit.Kind == ValueStr {
			return fmt.Sprintf("%q", e.Lit.S)
		}
		return e.Lit.String()
	case ExprUnary:
		return e.Op + e.Left.String()
	case ExprArithmetic, ExprRelational, ExprLogical:
		return fmt.Sprintf("(%s %s %s)", e.Left.String(), e.Op, e.Right.String())
	case ExprFuncCall:
		parts := make([]string, len(e.Args))
		for i, a := range e.Args {
			parts[i] = a.String()
		}
		return fmt.Sprintf("%s(%s)", e.Op, strings.Join(parts, ","))
	case ExprTypeCast:
		return fmt.Sprintf("(%s)%s", e.CastType, e.Left.String())
	case ExprEdgeDstID:
		return e.Ref + "._dst"
	case ExprEdgeSrcID:
		return e.Ref + "._src"
	case ExprEdgeRank:
		return e.Ref + "._rank"
	case ExprEdgeTypeName:
		return e.Ref + "._type"
	case ExprSourceProp:
		return "$^." + e.Ref + "." + e.Prop
	case ExprDestProp:
		return "$$." + e.Ref + "." + e.Prop
	case ExprAliasProp:
		return e.Ref + "." + e.Prop
	case ExprVariableProp:
		return "$" + e.Ref + "." + e.Prop
	case ExprInputProp:
		return "$-." + e.Prop
	default:
		return "(unknown)"
	}
}

// ---------------------------------------------------------------------------
// Pushdown filter serialization
//
// A pushdown filter travels to the storage shard as an opaque string: the
// msgpack encoding of the expression tree. Shards decode it back and
// evaluate it against each edge row before returning results.
// ---------------------------------------------------------------------------

// EncodeFilter serializes an expression for shard-side evaluation.
func EncodeFilter(e *Expression) (string, error) {
	data, err := msgpack.Marshal(e)
	if err != nil {
		return "", internalErrorf("encode filter: %v", err)
	}
	return string(data), nil
}

// DecodeFilter reverses EncodeFilter.
func DecodeFilter(s string) (*Expression, error) {
	var e Expression
	if err := msgpack.Unmarshal([]byte(s), &e); err != nil {
		return nil, dataErrorf("decode filter: %v", err)
	}
	return &e, nil
}

// pushdownable reports whether the filter references only data the storage
// shard can see for an edge row: edge alias props and constants. Source or
// destination tag props, inputs, variables and function calls keep the
// filter local.
func pushdownable(e *Expression) bool {
	if e == nil {
		return true
	}
	switch e.Kind {
	case ExprLiteral, ExprAliasProp:
		return true
	case ExprUnary, ExprTypeCast:
		return pushdownable(e.Left)
	case ExprArithmetic, ExprRelational, ExprLogical:
		return pushdownable(e.Left) && pushdownable(e.Right)
	default:
		return false
	}
}

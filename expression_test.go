package hopdb

import "testing"

func lit(v Value) *Expression { return &Expression{Kind: ExprLiteral, Lit: v} }

func TestExpression_Arithmetic(t *testing.T) {
	// (2 + 3) * 4
	e := &Expression{
		Kind: ExprArithmetic,
		Op:   "*",
		Left: &Expression{
			Kind:  ExprArithmetic,
			Op:    "+",
			Left:  lit(IntValue(2)),
			Right: lit(IntValue(3)),
		},
		Right: lit(IntValue(4)),
	}
	v, err := e.Eval(&Getters{})
	if err != nil {
		t.Fatal(err)
	}
	if v.I != 20 {
		t.Fatalf("expected 20, got %d", v.I)
	}
}

func TestExpression_MixedPromotesToFloat(t *testing.T) {
	e := &Expression{Kind: ExprArithmetic, Op: "+", Left: lit(IntValue(1)), Right: lit(FloatValue(0.5))}
	v, err := e.Eval(&Getters{})
	if err != nil {
		t.Fatal(err)
	}
	if v.Kind != ValueFloat || v.F != 1.5 {
		t.Fatalf("expected float 1.5, got %+v", v)
	}
}

func TestExpression_DivisionByZero(t *testing.T) {
	e := &Expression{Kind: ExprArithmetic, Op: "/", Left: lit(IntValue(1)), Right: lit(IntValue(0))}
	if _, err := e.Eval(&Getters{}); err == nil {
		t.Fatal("expected division by zero error")
	}
}

func TestExpression_RelationalAndLogical(t *testing.T) {
	// (3 > 2) && (1 == 1)
	e := &Expression{
		Kind:  ExprLogical,
		Op:    "&&",
		Left:  &Expression{Kind: ExprRelational, Op: ">", Left: lit(IntValue(3)), Right: lit(IntValue(2))},
		Right: &Expression{Kind: ExprRelational, Op: "==", Left: lit(IntValue(1)), Right: lit(IntValue(1))},
	}
	v, err := e.Eval(&Getters{})
	if err != nil {
		t.Fatal(err)
	}
	if !v.B {
		t.Fatal("expected true")
	}
}

func TestExpression_LogicalShortCircuit(t *testing.T) {
	// false && <error> must not evaluate the right side.
	bad := &Expression{Kind: ExprAliasProp, Ref: "e", Prop: "p"}
	e := &Expression{Kind: ExprLogical, Op: "&&", Left: lit(BoolValue(false)), Right: bad}
	v, err := e.Eval(&Getters{})
	if err != nil {
		t.Fatal(err)
	}
	if v.B {
		t.Fatal("expected false")
	}
}

func TestExpression_Functions(t *testing.T) {
	v, err := (&Expression{Kind: ExprFuncCall, Op: "abs", Args: []*Expression{lit(IntValue(-5))}}).Eval(&Getters{})
	if err != nil {
		t.Fatal(err)
	}
	if v.I != 5 {
		t.Fatalf("expected 5, got %d", v.I)
	}

	v, err = (&Expression{Kind: ExprFuncCall, Op: "upper", Args: []*Expression{lit(StrValue("abc"))}}).Eval(&Getters{})
	if err != nil {
		t.Fatal(err)
	}
	if v.S != "ABC" {
		t.Fatalf("expected ABC, got %q", v.S)
	}

	v, err = (&Expression{Kind: ExprFuncCall, Op: "udf_is_in", Args: []*Expression{
		lit(IntValue(2)), lit(IntValue(1)), lit(IntValue(2)),
	}}).Eval(&Getters{})
	if err != nil {
		t.Fatal(err)
	}
	if !v.B {
		t.Fatal("expected true")
	}

	if _, err := (&Expression{Kind: ExprFuncCall, Op: "no_such_fn"}).Eval(&Getters{}); err == nil {
		t.Fatal("expected unknown function error")
	}
}

func TestExpression_String(t *testing.T) {
	e := &Expression{
		Kind:  ExprRelational,
		Op:    ">",
		Left:  &Expression{Kind: ExprAliasProp, Ref: "like", Prop: "rating"},
		Right: lit(IntValue(3)),
	}
	if got := e.String(); got != "(like.rating > 3)" {
		t.Fatalf("unexpected textual form %q", got)
	}
	src := &Expression{Kind: ExprSourceProp, Ref: "person", Prop: "name"}
	if got := src.String(); got != "$^.person.name" {
		t.Fatalf("unexpected textual form %q", got)
	}
	dst := &Expression{Kind: ExprEdgeDstID, Ref: "friend"}
	if got := dst.String(); got != "friend._dst" {
		t.Fatalf("unexpected textual form %q", got)
	}
}

func TestExpression_PrepareRegistersDeps(t *testing.T) {
	ctx := NewExprContext(1)
	e := &Expression{
		Kind: ExprLogical,
		Op:   "&&",
		Left: &Expression{
			Kind:  ExprRelational,
			Op:    "==",
			Left:  &Expression{Kind: ExprSourceProp, Ref: "person", Prop: "name"},
			Right: lit(StrValue("a")),
		},
		Right: &Expression{
			Kind:  ExprRelational,
			Op:    ">",
			Left:  &Expression{Kind: ExprAliasProp, Ref: "like", Prop: "rating"},
			Right: lit(IntValue(0)),
		},
	}
	if err := e.Prepare(ctx); err != nil {
		t.Fatal(err)
	}
	if !ctx.HasSrcTagProp() || !ctx.HasEdgeProp() {
		t.Fatal("expected src tag prop and edge prop to be registered")
	}
	if ctx.HasDstTagProp() || ctx.HasInputProp() || ctx.HasVariableProp() {
		t.Fatal("unexpected dependency registered")
	}
}

func TestFilter_EncodeDecodeRoundTrip(t *testing.T) {
	e := &Expression{
		Kind:  ExprRelational,
		Op:    ">=",
		Left:  &Expression{Kind: ExprAliasProp, Ref: "like", Prop: "rating"},
		Right: lit(IntValue(4)),
	}
	s, err := EncodeFilter(e)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := DecodeFilter(s)
	if err != nil {
		t.Fatal(err)
	}
	got, err := decoded.Eval(&Getters{
		GetAliasProp: func(edge, prop string) (Value, error) {
			if prop != "rating" {
				t.Fatalf("unexpected prop %q", prop)
			}
			return IntValue(5), nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !got.B {
		t.Fatal("expected filter to pass")
	}
}

func TestFilter_Pushdownable(t *testing.T) {
	edgeOnly := &Expression{
		Kind:  ExprRelational,
		Op:    ">",
		Left:  &Expression{Kind: ExprAliasProp, Ref: "like", Prop: "rating"},
		Right: lit(IntValue(3)),
	}
	if !pushdownable(edgeOnly) {
		t.Fatal("edge-only filter should be pushdownable")
	}

	withSrc := &Expression{
		Kind:  ExprRelational,
		Op:    "==",
		Left:  &Expression{Kind: ExprSourceProp, Ref: "person", Prop: "name"},
		Right: lit(StrValue("a")),
	}
	if pushdownable(withSrc) {
		t.Fatal("source-tag filter must stay local")
	}
}

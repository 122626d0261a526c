package hopdb

import (
	"errors"
	"testing"
)

func testSchema() *Schema {
	return NewSchema().
		Append("ok", TypeBool).
		Append("count", TypeInt).
		Append("owner", TypeVID).
		Append("ratio", TypeFloat).
		Append("score", TypeDouble).
		Append("name", TypeString).
		Append("created", TypeTimestamp)
}

func testRow() []Value {
	return []Value{
		BoolValue(true),
		IntValue(-42),
		IntValue(99),
		FloatValue(1.5),
		FloatValue(2.25),
		StrValue("hello"),
		IntValue(1700000000),
	}
}

// ---------------------------------------------------------------------------
// Round trip: encode(decode(row)) == row for every supported type
// ---------------------------------------------------------------------------

func TestRowCodec_RoundTrip(t *testing.T) {
	schema := testSchema()
	row := testRow()

	data, err := EncodeRow(schema, row)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := DecodeRow(schema, data)
	if err != nil {
		t.Fatal(err)
	}
	if len(decoded) != len(row) {
		t.Fatalf("expected %d values, got %d", len(row), len(decoded))
	}
	for i := range row {
		if decoded[i] != row[i] {
			t.Fatalf("field %d: expected %+v, got %+v", i, row[i], decoded[i])
		}
	}

	// Re-encoding must be byte-identical.
	again, err := EncodeRow(schema, decoded)
	if err != nil {
		t.Fatal(err)
	}
	if string(again) != string(data) {
		t.Fatal("re-encoded row differs from original encoding")
	}
}

func TestRowCodec_DecodeField(t *testing.T) {
	schema := testSchema()
	data, err := EncodeRow(schema, testRow())
	if err != nil {
		t.Fatal(err)
	}

	v, err := DecodeField(schema, data, "name")
	if err != nil {
		t.Fatal(err)
	}
	if v.S != "hello" {
		t.Fatalf("expected hello, got %q", v.S)
	}

	v, err = DecodeField(schema, data, "score")
	if err != nil {
		t.Fatal(err)
	}
	if v.F != 2.25 {
		t.Fatalf("expected 2.25, got %g", v.F)
	}

	if _, err := DecodeField(schema, data, "missing"); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestRowCodec_ChecksumMismatch(t *testing.T) {
	schema := NewSchema().Append("n", TypeInt)
	data, err := EncodeRow(schema, []Value{IntValue(7)})
	if err != nil {
		t.Fatal(err)
	}
	data[0] ^= 0xff
	if _, err := DecodeRow(schema, data); err == nil {
		t.Fatal("expected checksum mismatch error")
	}
}

func TestRowCodec_KindMismatch(t *testing.T) {
	schema := NewSchema().Append("n", TypeInt)
	_, err := EncodeRow(schema, []Value{StrValue("not an int")})
	if err == nil {
		t.Fatal("expected kind mismatch error")
	}
	if KindOf(err) != ErrData {
		t.Fatalf("expected data error, got %v", KindOf(err))
	}
}

func TestRowCodec_ReservedTypesUnimplemented(t *testing.T) {
	schema := NewSchema().Append("d", TypeDate)
	_, err := EncodeRow(schema, []Value{IntValue(0)})
	if err == nil {
		t.Fatal("expected unimplemented error")
	}
	var typed *Error
	if !errors.As(err, &typed) || typed.Kind != ErrUnimplemented {
		t.Fatalf("expected unimplemented, got %v", err)
	}
}

func TestSchema_Defaults(t *testing.T) {
	schema := NewSchema().
		Append("name", TypeString).
		Append("age", TypeInt)
	schema.Fields[1].Default = IntValue(18)

	v, err := schema.Default("name")
	if err != nil {
		t.Fatal(err)
	}
	if v.S != "" {
		t.Fatalf("expected empty default, got %q", v.S)
	}

	v, err = schema.Default("age")
	if err != nil {
		t.Fatal(err)
	}
	if v.I != 18 {
		t.Fatalf("expected declared default 18, got %d", v.I)
	}

	if _, err := schema.Default("missing"); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

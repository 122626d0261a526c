package hopdb

import (
	"fmt"
	"hash/fnv"
	"math"
)

// GraphSpaceID identifies a tenant-scoped graph namespace. All tag ids and
// edge types are relative to a space.
type GraphSpaceID int32

// VID uniquely identifies a vertex in a space.
type VID int64

// TagID identifies a named property set attachable to a vertex.
type TagID int32

// EdgeType is a signed edge-type id. A positive value is the forward
// direction; the negation is the reverse view of the same logical edge.
type EdgeType int32

// Abs returns the forward (positive) edge type.
func (t EdgeType) Abs() EdgeType {
	if t < 0 {
		return -t
	}
	return t
}

// EdgeRank disambiguates parallel edges of the same type between the same
// pair of vertices.
type EdgeRank int64

// EdgeKey uniquely identifies one edge instance.
type EdgeKey struct {
	Src  VID      `msgpack:"src"`
	Dst  VID      `msgpack:"dst"`
	Type EdgeType `msgpack:"type"`
	Rank EdgeRank `msgpack:"rank"`
}

// Reserved property names carried by every edge row.
const (
	PropSrc  = "_SRC"
	PropDst  = "_DST"
	PropType = "_TYPE"
	PropRank = "_RANK"
)

// SupportedType is the declared type of a schema field.
type SupportedType uint8

const (
	TypeUnknown SupportedType = iota
	TypeBool
	TypeInt
	TypeVID
	TypeFloat
	TypeDouble
	TypeString
	TypeTimestamp
	TypeYear
	TypeYearMonth
	TypeDate
	TypeDateTime
	TypePath
)

// String returns the lowercase name of the type.
func (t SupportedType) String() string {
	switch t {
	case TypeBool:
		return "bool"
	case TypeInt:
		return "int"
	case TypeVID:
		return "vid"
	case TypeFloat:
		return "float"
	case TypeDouble:
		return "double"
	case TypeString:
		return "string"
	case TypeTimestamp:
		return "timestamp"
	case TypeYear:
		return "year"
	case TypeYearMonth:
		return "yearmonth"
	case TypeDate:
		return "date"
	case TypeDateTime:
		return "datetime"
	case TypePath:
		return "path"
	default:
		return "unknown"
	}
}

// ValueKind tags the runtime kind of a Value.
type ValueKind uint8

const (
	ValueEmpty ValueKind = iota
	ValueBool
	ValueInt
	ValueFloat
	ValueStr
)

// Value is the tagged union flowing through the evaluator. Floats and
// doubles collapse to one numeric kind here; the output stage re-selects
// single/double precision from the declared column type.
type Value struct {
	Kind ValueKind `msgpack:"kind"`
	B    bool      `msgpack:"b"`
	I    int64     `msgpack:"i"`
	F    float64   `msgpack:"f"`
	S    string    `msgpack:"s"`
}

// BoolValue wraps a bool.
func BoolValue(b bool) Value { return Value{Kind: ValueBool, B: b} }

// IntValue wraps an int64.
func IntValue(i int64) Value { return Value{Kind: ValueInt, I: i} }

// FloatValue wraps a float64.
func FloatValue(f float64) Value { return Value{Kind: ValueFloat, F: f} }

// StrValue wraps a string.
func StrValue(s string) Value { return Value{Kind: ValueStr, S: s} }

// IsInt reports whether the value holds an integer.
func (v Value) IsInt() bool { return v.Kind == ValueInt }

// IsBool reports whether the value holds a bool.
func (v Value) IsBool() bool { return v.Kind == ValueBool }

// AsBool coerces the value to a bool. Non-bool kinds follow truthiness:
// non-zero numbers and non-empty strings are true.
func (v Value) AsBool() bool {
	switch v.Kind {
	case ValueBool:
		return v.B
	case ValueInt:
		return v.I != 0
	case ValueFloat:
		return v.F != 0
	case ValueStr:
		return v.S != ""
	default:
		return false
	}
}

// AsFloat coerces a numeric value to float64.
func (v Value) AsFloat() float64 {
	if v.Kind == ValueInt {
		return float64(v.I)
	}
	return v.F
}

// String renders the value for column names, logs and error messages.
func (v Value) String() string {
	switch v.Kind {
	case ValueBool:
		return fmt.Sprintf("%t", v.B)
	case ValueInt:
		return fmt.Sprintf("%d", v.I)
	case ValueFloat:
		return fmt.Sprintf("%g", v.F)
	case ValueStr:
		return v.S
	default:
		return "(empty)"
	}
}

// hashRecord computes an FNV-1a hash over a projected value tuple.
// Used for DISTINCT deduplication under the projected column order.
func hashRecord(record []Value) uint64 {
	h := fnv.New64a()
	var buf [8]byte
	for _, v := range record {
		buf[0] = byte(v.Kind)
		h.Write(buf[:1])
		switch v.Kind {
		case ValueBool:
			if v.B {
				buf[0] = 1
			} else {
				buf[0] = 0
			}
			h.Write(buf[:1])
		case ValueInt:
			putUint64(buf[:], uint64(v.I))
			h.Write(buf[:])
		case ValueFloat:
			putUint64(buf[:], math.Float64bits(v.F))
			h.Write(buf[:])
		case ValueStr:
			h.Write([]byte(v.S))
			buf[0] = 0x00 // terminator so ("a","b") != ("ab","")
			h.Write(buf[:1])
		}
	}
	return h.Sum64()
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (56 - 8*i))
	}
}

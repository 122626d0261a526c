package hopdb

import (
	"encoding/binary"
	"hash/crc32"
	"math"
)

// Row codec.
// A row is encoded positionally against its schema: the byte layout has no
// field names, so decoding requires the same schema. All multi-byte
// integers are big-endian. Every encoded row ends with a CRC32 trailer.
//
// Field layouts:
//
//	BOOL                     1 byte (0/1)
//	INT / VID / TIMESTAMP    8 bytes
//	FLOAT                    4 bytes (IEEE 754 single)
//	DOUBLE                   8 bytes (IEEE 754 double)
//	STRING                   4-byte length + bytes

// crc32Table is the precomputed Castagnoli CRC32 table (hardware-accelerated
// on modern CPUs).
var crc32Table = crc32.MakeTable(crc32.Castagnoli)

// EncodeRow serializes values positionally against the schema and appends a
// CRC32 checksum. The value count and kinds must match the schema.
func EncodeRow(s *Schema, row []Value) ([]byte, error) {
	if len(row) != s.Len() {
		return nil, dataErrorf("row has %d values, schema has %d fields", len(row), s.Len())
	}
	buf := make([]byte, 0, 16*s.Len())
	for i, f := range s.Fields {
		var err error
		buf, err = appendField(buf, f, row[i])
		if err != nil {
			return nil, err
		}
	}
	sum := crc32.Checksum(buf, crc32Table)
	buf = binary.BigEndian.AppendUint32(buf, sum)
	return buf, nil
}

func appendField(buf []byte, f SchemaField, v Value) ([]byte, error) {
	switch f.Type {
	case TypeBool:
		if v.Kind != ValueBool {
			return nil, dataErrorf("field `%s' expects bool, got %v", f.Name, v.Kind)
		}
		if v.B {
			return append(buf, 1), nil
		}
		return append(buf, 0), nil
	case TypeInt, TypeVID, TypeTimestamp:
		if v.Kind != ValueInt {
			return nil, dataErrorf("field `%s' expects int, got %v", f.Name, v.Kind)
		}
		return binary.BigEndian.AppendUint64(buf, uint64(v.I)), nil
	case TypeFloat:
		if v.Kind != ValueFloat && v.Kind != ValueInt {
			return nil, dataErrorf("field `%s' expects float, got %v", f.Name, v.Kind)
		}
		return binary.BigEndian.AppendUint32(buf, math.Float32bits(float32(v.AsFloat()))), nil
	case TypeDouble:
		if v.Kind != ValueFloat && v.Kind != ValueInt {
			return nil, dataErrorf("field `%s' expects double, got %v", f.Name, v.Kind)
		}
		return binary.BigEndian.AppendUint64(buf, math.Float64bits(v.AsFloat())), nil
	case TypeString:
		if v.Kind != ValueStr {
			return nil, dataErrorf("field `%s' expects string, got %v", f.Name, v.Kind)
		}
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(v.S)))
		return append(buf, v.S...), nil
	case TypeYear, TypeYearMonth, TypeDate, TypeDateTime, TypePath:
		return nil, unimplementedErrorf("encoding for type %s is reserved", f.Type)
	default:
		return nil, dataErrorf("field `%s' has unknown type", f.Name)
	}
}

// DecodeRow deserializes an encoded row against the schema, verifying the
// CRC32 trailer first.
func DecodeRow(s *Schema, data []byte) ([]Value, error) {
	payload, err := verifyChecksum(data)
	if err != nil {
		return nil, err
	}
	row := make([]Value, 0, s.Len())
	off := 0
	for i := range s.Fields {
		v, n, err := decodeField(s.Fields[i], payload[off:])
		if err != nil {
			return nil, err
		}
		row = append(row, v)
		off += n
	}
	if off != len(payload) {
		return nil, dataErrorf("row has %d trailing bytes", len(payload)-off)
	}
	return row, nil
}

// DecodeField decodes a single named field from an encoded row.
func DecodeField(s *Schema, data []byte, name string) (Value, error) {
	idx := s.FieldIndex(name)
	if idx < 0 {
		return Value{}, dataErrorf("field `%s' not in schema", name)
	}
	payload, err := verifyChecksum(data)
	if err != nil {
		return Value{}, err
	}
	off := 0
	for i := 0; i <= idx; i++ {
		v, n, err := decodeField(s.Fields[i], payload[off:])
		if err != nil {
			return Value{}, err
		}
		if i == idx {
			return v, nil
		}
		off += n
	}
	return Value{}, internalErrorf("unreachable field decode for `%s'", name)
}

func verifyChecksum(data []byte) ([]byte, error) {
	if len(data) < 4 {
		return nil, dataErrorf("row data too short (%d bytes)", len(data))
	}
	payload := data[:len(data)-4]
	stored := binary.BigEndian.Uint32(data[len(data)-4:])
	actual := crc32.Checksum(payload, crc32Table)
	if stored != actual {
		return nil, dataErrorf("row checksum mismatch (stored=%08x actual=%08x)", stored, actual)
	}
	return payload, nil
}

func decodeField(f SchemaField, data []byte) (Value, int, error) {
	switch f.Type {
	case TypeBool:
		if len(data) < 1 {
			return Value{}, 0, dataErrorf("truncated bool field `%s'", f.Name)
		}
		return BoolValue(data[0] != 0), 1, nil
	case TypeInt, TypeVID, TypeTimestamp:
		if len(data) < 8 {
			return Value{}, 0, dataErrorf("truncated int field `%s'", f.Name)
		}
		return IntValue(int64(binary.BigEndian.Uint64(data[:8]))), 8, nil
	case TypeFloat:
		if len(data) < 4 {
			return Value{}, 0, dataErrorf("truncated float field `%s'", f.Name)
		}
		return FloatValue(float64(math.Float32frombits(binary.BigEndian.Uint32(data[:4])))), 4, nil
	case TypeDouble:
		if len(data) < 8 {
			return Value{}, 0, dataErrorf("truncated double field `%s'", f.Name)
		}
		return FloatValue(math.Float64frombits(binary.BigEndian.Uint64(data[:8]))), 8, nil
	case TypeString:
		if len(data) < 4 {
			return Value{}, 0, dataErrorf("truncated string field `%s'", f.Name)
		}
		n := int(binary.BigEndian.Uint32(data[:4]))
		if len(data) < 4+n {
			return Value{}, 0, dataErrorf("truncated string field `%s'", f.Name)
		}
		return StrValue(string(data[4 : 4+n])), 4 + n, nil
	case TypeYear, TypeYearMonth, TypeDate, TypeDateTime, TypePath:
		return Value{}, 0, unimplementedErrorf("decoding for type %s is reserved", f.Type)
	default:
		return Value{}, 0, dataErrorf("field `%s' has unknown type", f.Name)
	}
}

// Package codec implements the canonical binary encoding used for logical
// rows before they are encrypted. The encoding is versioned so that records
// written by older releases either decode correctly or fail with
// ErrUnsupportedVersion instead of being misread, and it is canonical: the
// same logical row always produces the same byte sequence.
package codec

import (
	"encoding/binary"
	"errors"
	"math"
	"time"
)

// FormatVersion is the current row encoding version. It is the first byte
// of every encoded row.
const FormatVersion = 1

var (
	// ErrCorruptFormat indicates the bytes do not form a valid encoded row.
	ErrCorruptFormat = errors.New("corrupt row encoding")
	// ErrUnsupportedVersion indicates the row was written with an encoding
	// version this build does not understand.
	ErrUnsupportedVersion = errors.New("unsupported encoding version")
)

// Kind identifies the type of a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindText
	KindBytes
	KindTime
)

// String returns a human readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindText:
		return "text"
	case KindBytes:
		return "bytes"
	case KindTime:
		return "time"
	default:
		return "unknown"
	}
}

// Value is a single typed column value.
type Value struct {
	kind  Kind
	num   uint64 // bool, int, float and time payloads
	str   string
	bytes []byte
}

// Null returns the null value.
func Null() Value { return Value{kind: KindNull} }

// Bool returns a boolean value.
func Bool(b bool) Value {
	var n uint64
	if b {
		n = 1
	}
	return Value{kind: KindBool, num: n}
}

// Int returns a 64-bit integer value.
func Int(i int64) Value { return Value{kind: KindInt, num: uint64(i)} }

// Float returns a 64-bit floating point value.
func Float(f float64) Value { return Value{kind: KindFloat, num: math.Float64bits(f)} }

// Text returns a string value.
func Text(s string) Value { return Value{kind: KindText, str: s} }

// Bytes returns a binary value. The slice is copied.
func Bytes(b []byte) Value {
	cp := make([]byte, len(b))
	copy(cp, b)
	return Value{kind: KindBytes, bytes: cp}
}

// Time returns a timestamp value with nanosecond precision, stored as UTC.
func Time(t time.Time) Value { return Value{kind: KindTime, num: uint64(t.UnixNano())} }

// Kind reports the type of the value.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the boolean payload. Valid only for KindBool.
func (v Value) AsBool() bool { return v.num != 0 }

// AsInt returns the integer payload. Valid only for KindInt.
func (v Value) AsInt() int64 { return int64(v.num) }

// AsFloat returns the float payload. Valid only for KindFloat.
func (v Value) AsFloat() float64 { return math.Float64frombits(v.num) }

// AsText returns the string payload. Valid only for KindText.
func (v Value) AsText() string { return v.str }

// AsBytes returns the binary payload. Valid only for KindBytes.
// The returned slice must not be mutated.
func (v Value) AsBytes() []byte { return v.bytes }

// AsTime returns the timestamp payload in UTC. Valid only for KindTime.
func (v Value) AsTime() time.Time { return time.Unix(0, int64(v.num)).UTC() }

// Equal reports whether two values have the same kind and payload.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindText:
		return v.str == o.str
	case KindBytes:
		if len(v.bytes) != len(o.bytes) {
			return false
		}
		for i := range v.bytes {
			if v.bytes[i] != o.bytes[i] {
				return false
			}
		}
		return true
	default:
		return v.num == o.num
	}
}

// Row is an ordered sequence of column values, the logical unit the store
// encrypts and persists.
type Row []Value

// Equal reports whether two rows have identical values in identical order.
func (r Row) Equal(o Row) bool {
	if len(r) != len(o) {
		return false
	}
	for i := range r {
		if !r[i].Equal(o[i]) {
			return false
		}
	}
	return true
}

// Encode serializes a row into its canonical binary form:
// version byte, value count, then one (kind, payload) pair per value.
// Variable-length payloads are uvarint length prefixed; numeric payloads
// are fixed 8-byte big-endian.
func Encode(row Row) []byte {
	buf := make([]byte, 0, encodedSize(row))
	buf = append(buf, FormatVersion)
	buf = binary.AppendUvarint(buf, uint64(len(row)))
	for _, v := range row {
		buf = append(buf, byte(v.kind))
		switch v.kind {
		case KindNull:
		case KindBool:
			buf = append(buf, byte(v.num))
		case KindInt, KindFloat, KindTime:
			buf = binary.BigEndian.AppendUint64(buf, v.num)
		case KindText:
			buf = binary.AppendUvarint(buf, uint64(len(v.str)))
			buf = append(buf, v.str...)
		case KindBytes:
			buf = binary.AppendUvarint(buf, uint64(len(v.bytes)))
			buf = append(buf, v.bytes...)
		}
	}
	return buf
}

func encodedSize(row Row) int {
	n := 1 + binary.MaxVarintLen64
	for _, v := range row {
		n += 1 + 8 + binary.MaxVarintLen64 + len(v.str) + len(v.bytes)
	}
	return n
}

// Decode parses a canonical row encoding. It returns ErrUnsupportedVersion
// for unknown version bytes and ErrCorruptFormat for anything that does not
// parse exactly; trailing bytes are rejected.
func Decode(data []byte) (Row, error) {
	row, rest, err := decodeRow(data)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, ErrCorruptFormat
	}
	return row, nil
}

func decodeRow(data []byte) (Row, []byte, error) {
	if len(data) == 0 {
		return nil, nil, ErrCorruptFormat
	}
	if data[0] != FormatVersion {
		return nil, nil, ErrUnsupportedVersion
	}
	data = data[1:]

	count, n := binary.Uvarint(data)
	if n <= 0 {
		return nil, nil, ErrCorruptFormat
	}
	data = data[n:]

	// Every value carries at least its kind byte, so a count exceeding the
	// remaining bytes cannot be valid and must not dictate an allocation.
	if count > uint64(len(data)) {
		return nil, nil, ErrCorruptFormat
	}

	row := make(Row, 0, count)
	for i := uint64(0); i < count; i++ {
		if len(data) == 0 {
			return nil, nil, ErrCorruptFormat
		}
		kind := Kind(data[0])
		data = data[1:]

		switch kind {
		case KindNull:
			row = append(row, Null())
		case KindBool:
			if len(data) < 1 || data[0] > 1 {
				return nil, nil, ErrCorruptFormat
			}
			row = append(row, Bool(data[0] == 1))
			data = data[1:]
		case KindInt, KindFloat, KindTime:
			if len(data) < 8 {
				return nil, nil, ErrCorruptFormat
			}
			num := binary.BigEndian.Uint64(data)
			row = append(row, Value{kind: kind, num: num})
			data = data[8:]
		case KindText, KindBytes:
			size, n := binary.Uvarint(data)
			if n <= 0 || uint64(len(data[n:])) < size {
				return nil, nil, ErrCorruptFormat
			}
			payload := data[n : n+int(size)]
			if kind == KindText {
				row = append(row, Text(string(payload)))
			} else {
				row = append(row, Bytes(payload))
			}
			data = data[n+int(size):]
		default:
			return nil, nil, ErrCorruptFormat
		}
	}
	return row, data, nil
}

// EncodeEntry serializes a logical key together with its row. The key is
// embedded so that a scan over non-order-preserving storage keys can recover
// the logical key after decryption.
func EncodeEntry(key []byte, row Row) []byte {
	buf := make([]byte, 0, binary.MaxVarintLen64+len(key)+encodedSize(row))
	buf = binary.AppendUvarint(buf, uint64(len(key)))
	buf = append(buf, key...)
	return append(buf, Encode(row)...)
}

// DecodeEntry parses an entry produced by EncodeEntry, returning the logical
// key and the row.
func DecodeEntry(data []byte) ([]byte, Row, error) {
	size, n := binary.Uvarint(data)
	if n <= 0 || uint64(len(data[n:])) < size {
		return nil, nil, ErrCorruptFormat
	}
	key := make([]byte, size)
	copy(key, data[n:n+int(size)])

	row, err := Decode(data[n+int(size):])
	if err != nil {
		return nil, nil, err
	}
	return key, row, nil
}

package qsettings

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"unicode/utf16"
)

// QMetaType ids as written by QDataStream version Qt_4_0, the version
// QSettings uses for @Variant values.
const (
	typeInvalid     uint32 = 0
	typeBool        uint32 = 1
	typeInt         uint32 = 2
	typeUInt        uint32 = 3
	typeLongLong    uint32 = 4
	typeULongLong   uint32 = 5
	typeDouble      uint32 = 6
	typeChar        uint32 = 7
	typeVariantMap  uint32 = 8
	typeVariantList uint32 = 9
	typeString      uint32 = 10
	typeStringList  uint32 = 11
	typeByteArray   uint32 = 12
	typeVariantHash uint32 = 28
)

const nullLength uint32 = 0xffffffff

var (
	ErrUnsupportedType = errors.New("unsupported variant type")
	ErrTruncated       = errors.New("truncated variant data")
)

// MarshalVariant serializes v the way QDataStream writes a QVariant.
// Supported Go types: nil, bool, int, int32, int64, uint, uint32, uint64,
// float64, string, []byte, []string, []any and map[string]any.
func MarshalVariant(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeVariant(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalVariant parses a QDataStream QVariant
func UnmarshalVariant(data []byte) (any, error) {
	r := bytes.NewReader(data)
	v, err := readVariant(r)
	if err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%d trailing bytes after variant", r.Len())
	}
	return v, nil
}

func writeVariant(w *bytes.Buffer, v any) error {
	switch x := v.(type) {
	case nil:
		writeUint32(w, typeInvalid)
		writeUint32(w, nullLength)
	case bool:
		writeUint32(w, typeBool)
		if x {
			w.WriteByte(1)
		} else {
			w.WriteByte(0)
		}
	case int:
		if x >= math.MinInt32 && x <= math.MaxInt32 {
			writeUint32(w, typeInt)
			writeUint32(w, uint32(int32(x)))
		} else {
			writeUint32(w, typeLongLong)
			writeUint64(w, uint64(int64(x)))
		}
	case int32:
		writeUint32(w, typeInt)
		writeUint32(w, uint32(x))
	case int64:
		writeUint32(w, typeLongLong)
		writeUint64(w, uint64(x))
	case uint:
		if x <= math.MaxUint32 {
			writeUint32(w, typeUInt)
			writeUint32(w, uint32(x))
		} else {
			writeUint32(w, typeULongLong)
			writeUint64(w, uint64(x))
		}
	case uint32:
		writeUint32(w, typeUInt)
		writeUint32(w, x)
	case uint64:
		writeUint32(w, typeULongLong)
		writeUint64(w, x)
	case float64:
		writeUint32(w, typeDouble)
		writeUint64(w, math.Float64bits(x))
	case string:
		writeUint32(w, typeString)
		writeString(w, x)
	case []byte:
		writeUint32(w, typeByteArray)
		if x == nil {
			writeUint32(w, nullLength)
			break
		}
		writeUint32(w, uint32(len(x)))
		w.Write(x)
	case []string:
		writeUint32(w, typeStringList)
		writeUint32(w, uint32(len(x)))
		for _, s := range x {
			writeString(w, s)
		}
	case []any:
		writeUint32(w, typeVariantList)
		writeUint32(w, uint32(len(x)))
		for _, item := range x {
			if err := writeVariant(w, item); err != nil {
				return err
			}
		}
	case map[string]any:
		writeUint32(w, typeVariantMap)
		writeUint32(w, uint32(len(x)))

		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		// QMap streams its entries from the last key to the first
		sort.Sort(sort.Reverse(sort.StringSlice(keys)))
		for _, k := range keys {
			writeString(w, k)
			if err := writeVariant(w, x[k]); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedType, v)
	}
	return nil
}

func readVariant(r *bytes.Reader) (any, error) {
	typeID, err := readUint32(r)
	if err != nil {
		return nil, err
	}

	switch typeID {
	case typeInvalid:
		// pre Qt 5 streams carry an empty string after an invalid variant
		if _, _, err := readString(r); err != nil {
			return nil, err
		}
		return nil, nil
	case typeBool:
		b, err := r.ReadByte()
		if err != nil {
			return nil, ErrTruncated
		}
		return b != 0, nil
	case typeInt:
		n, err := readUint32(r)
		return int(int32(n)), err
	case typeUInt:
		n, err := readUint32(r)
		return uint(n), err
	case typeLongLong:
		n, err := readUint64(r)
		return int64(n), err
	case typeULongLong:
		return readUint64(r)
	case typeDouble:
		n, err := readUint64(r)
		return math.Float64frombits(n), err
	case typeChar:
		var c uint16
		if err := binary.Read(r, binary.BigEndian, &c); err != nil {
			return nil, ErrTruncated
		}
		return string(utf16.Decode([]uint16{c})), nil
	case typeString:
		s, _, err := readString(r)
		return s, err
	case typeByteArray:
		n, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		if n == nullLength {
			return []byte(nil), nil
		}
		if int64(n) > int64(r.Len()) {
			return nil, ErrTruncated
		}
		b := make([]byte, n)
		if _, err := io.ReadFull(r, b); err != nil {
			return nil, ErrTruncated
		}
		return b, nil
	case typeStringList:
		n, err := readCount(r)
		if err != nil {
			return nil, err
		}
		list := make([]string, 0, n)
		for i := uint32(0); i < n; i++ {
			s, _, err := readString(r)
			if err != nil {
				return nil, err
			}
			list = append(list, s)
		}
		return list, nil
	case typeVariantList:
		n, err := readCount(r)
		if err != nil {
			return nil, err
		}
		list := make([]any, 0, n)
		for i := uint32(0); i < n; i++ {
			item, err := readVariant(r)
			if err != nil {
				return nil, err
			}
			list = append(list, item)
		}
		return list, nil
	case typeVariantMap, typeVariantHash:
		n, err := readCount(r)
		if err != nil {
			return nil, err
		}
		m := make(map[string]any, n)
		for i := uint32(0); i < n; i++ {
			k, _, err := readString(r)
			if err != nil {
				return nil, err
			}
			item, err := readVariant(r)
			if err != nil {
				return nil, err
			}
			// the first occurrence of a key is the most recent insert
			if _, ok := m[k]; !ok {
				m[k] = item
			}
		}
		return m, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedType, typeID)
	}
}

func writeUint32(w *bytes.Buffer, n uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], n)
	w.Write(b[:])
}

func writeUint64(w *bytes.Buffer, n uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], n)
	w.Write(b[:])
}

// writeString writes a QString: byte length followed by UTF-16BE code units
func writeString(w *bytes.Buffer, s string) {
	units := utf16.Encode([]rune(s))
	writeUint32(w, uint32(len(units)*2))
	for _, u := range units {
		w.WriteByte(byte(u >> 8))
		w.WriteByte(byte(u))
	}
}

func readUint32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, ErrTruncated
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func readUint64(r *bytes.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, ErrTruncated
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

// readCount reads a container size and rejects sizes the remaining data cannot hold
func readCount(r *bytes.Reader) (uint32, error) {
	n, err := readUint32(r)
	if err != nil {
		return 0, err
	}
	if int64(n) > int64(r.Len()) {
		return 0, ErrTruncated
	}
	return n, nil
}

// readString reads a QString. null reports the null string marker.
func readString(r *bytes.Reader) (s string, null bool, err error) {
	n, err := readUint32(r)
	if err != nil {
		return "", false, err
	}
	if n == nullLength {
		return "", true, nil
	}
	if n%2 != 0 {
		return "", false, fmt.Errorf("odd string length %d", n)
	}
	if int64(n) > int64(r.Len()) {
		return "", false, ErrTruncated
	}

	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", false, ErrTruncated
	}
	units := make([]uint16, n/2)
	for i := range units {
		units[i] = binary.BigEndian.Uint16(b[2*i:])
	}
	return string(utf16.Decode(units)), false, nil
}

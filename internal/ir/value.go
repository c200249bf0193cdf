package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"unicode/utf16"
)

// IRValue is a sealed interface representing dataspace values.
// Only IRNull, IRString, IRInt, IRBool, IRArray, IRObject and IRRecord
// implement this. NO IRFloat - floats break canonical equality.
type IRValue interface {
	irValue() // Sealed - only these types implement it
}

// IRNull represents a null datum.
type IRNull struct{}

func (IRNull) irValue() {}

// MarshalJSON implements json.Marshaler for IRNull.
func (IRNull) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// IRString represents a string value.
type IRString string

func (IRString) irValue() {}

// IRInt represents an integer value. Always int64, never float64.
type IRInt int64

func (IRInt) irValue() {}

// IRBool represents a boolean value.
type IRBool bool

func (IRBool) irValue() {}

// IRArray represents a sequence of IRValue elements.
type IRArray []IRValue

func (IRArray) irValue() {}

// IRObject represents a map of string keys to IRValue elements.
// Use SortedKeys() for deterministic iteration.
//
// Keys beginning with RecordPrefix are reserved for the record encoding
// and are rejected by canonical marshaling.
type IRObject map[string]IRValue

func (IRObject) irValue() {}

// IRRecord is a labelled tuple: the structured value dataspace assertions
// are built from. BoxState(3) is IRRecord{Label: "BoxState", Fields: [3]}.
type IRRecord struct {
	Label  string
	Fields []IRValue
}

func (IRRecord) irValue() {}

// RecordPrefix marks a record in JSON form: {"@Label": [fields...]}.
const RecordPrefix = "@"

// NewIRString creates an IRString value.
func NewIRString(s string) IRString {
	return IRString(s)
}

// NewIRInt creates an IRInt value.
func NewIRInt(n int64) IRInt {
	return IRInt(n)
}

// NewIRBool creates an IRBool value.
func NewIRBool(b bool) IRBool {
	return IRBool(b)
}

// NewIRArray creates an IRArray from values.
func NewIRArray(vals ...IRValue) IRArray {
	return IRArray(vals)
}

// Rec builds a record. Rec("BoxState", IRInt(0)) is BoxState(0).
func Rec(label string, fields ...IRValue) IRRecord {
	if fields == nil {
		fields = []IRValue{}
	}
	return IRRecord{Label: label, Fields: fields}
}

// Arity returns the number of fields of the record.
func (r IRRecord) Arity() int {
	return len(r.Fields)
}

// IRPair represents a key-value pair for typed IRObject construction.
type IRPair struct {
	Key   string
	Value IRValue
}

// NewIRObjectFromPairs creates an IRObject from typed key-value pairs.
// Example: NewIRObjectFromPairs(O("name", NewIRString("cart")), O("count", NewIRInt(5)))
func NewIRObjectFromPairs(pairs ...IRPair) IRObject {
	obj := make(IRObject, len(pairs))
	for _, p := range pairs {
		obj[p.Key] = p.Value
	}
	return obj
}

// O is a shorthand for IRPair for ergonomic construction.
func O(key string, value IRValue) IRPair {
	return IRPair{Key: key, Value: value}
}

// SortedKeys returns keys in RFC 8785 canonical order (UTF-16 code units).
// CRITICAL: Go's sort.Strings uses UTF-8 which produces DIFFERENT order.
func (obj IRObject) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

// compareKeysRFC8785 compares strings using UTF-16 code unit ordering
// as required by RFC 8785 (Canonical JSON).
func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	return slices.Compare(a16, b16)
}

// kindRank fixes the cross-kind part of the total order.
func kindRank(v IRValue) int {
	switch v.(type) {
	case nil, IRNull:
		return 0
	case IRBool:
		return 1
	case IRInt:
		return 2
	case IRString:
		return 3
	case IRArray:
		return 4
	case IRObject:
		return 5
	case IRRecord:
		return 6
	default:
		panic(fmt.Sprintf("ir: unknown IRValue type %T", v))
	}
}

// Compare is the total order over values. It returns -1, 0 or +1.
//
// Values of different kinds order by kind: null < bool < int < string <
// array < object < record. Within a kind: false < true, numeric order,
// RFC 8785 key order for strings, lexicographic order for arrays, sorted
// (key, value) pairs for objects, and label, arity, then fields for
// records. A nil interface compares equal to IRNull.
func Compare(a, b IRValue) int {
	ra, rb := kindRank(a), kindRank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}

	switch x := a.(type) {
	case nil, IRNull:
		return 0
	case IRBool:
		y := b.(IRBool)
		switch {
		case x == y:
			return 0
		case !bool(x):
			return -1
		default:
			return 1
		}
	case IRInt:
		y := b.(IRInt)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		default:
			return 0
		}
	case IRString:
		return compareKeysRFC8785(string(x), string(b.(IRString)))
	case IRArray:
		return compareSeq(x, b.(IRArray))
	case IRObject:
		return compareObjects(x, b.(IRObject))
	case IRRecord:
		y := b.(IRRecord)
		if c := compareKeysRFC8785(x.Label, y.Label); c != 0 {
			return c
		}
		if len(x.Fields) != len(y.Fields) {
			if len(x.Fields) < len(y.Fields) {
				return -1
			}
			return 1
		}
		return compareSeq(x.Fields, y.Fields)
	}
	return 0
}

func compareSeq(a, b []IRValue) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if c := Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

func compareObjects(a, b IRObject) int {
	ak, bk := a.SortedKeys(), b.SortedKeys()
	n := min(len(ak), len(bk))
	for i := 0; i < n; i++ {
		if c := compareKeysRFC8785(ak[i], bk[i]); c != 0 {
			return c
		}
		if c := Compare(a[ak[i]], b[bk[i]]); c != 0 {
			return c
		}
	}
	switch {
	case len(ak) < len(bk):
		return -1
	case len(ak) > len(bk):
		return 1
	default:
		return 0
	}
}

// Equal reports deep equality of two values.
func Equal(a, b IRValue) bool {
	return Compare(a, b) == 0
}

// String renders a value in its canonical JSON form for logs and errors.
// Values that cannot be encoded render with %v.
func String(v IRValue) string {
	b, err := MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// UnmarshalJSON implements json.Unmarshaler for IRObject.
// A single-key object whose key starts with RecordPrefix and whose value
// is an array is NOT an IRObject; use UnmarshalIRValue to get an IRRecord.
func (obj *IRObject) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*obj = make(IRObject, len(raw))
	for k, v := range raw {
		val, err := unmarshalIRValue(v)
		if err != nil {
			return fmt.Errorf("IRObject key %q: %w", k, err)
		}
		(*obj)[k] = val
	}
	return nil
}

// UnmarshalJSON implements json.Unmarshaler for IRArray.
func (arr *IRArray) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*arr = make(IRArray, len(raw))
	for i, v := range raw {
		val, err := unmarshalIRValue(v)
		if err != nil {
			return fmt.Errorf("IRArray index %d: %w", i, err)
		}
		(*arr)[i] = val
	}
	return nil
}

// unmarshalIRValue decodes a JSON value into the appropriate IRValue type.
// Floats are rejected; records are recognised by their "@Label" key.
func unmarshalIRValue(data []byte) (IRValue, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty JSON value")
	}
	return UnmarshalIRValue(data)
}

// MarshalJSON implements json.Marshaler for IRObject with sorted keys.
// NOTE: This is NOT canonical marshaling. Use MarshalCanonical for keys and hashes.
func (obj IRObject) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	for i, k := range obj.SortedKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, fmt.Errorf("marshal key %q: %w", k, err)
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')

		valBytes, err := MarshalIRValue(obj[k])
		if err != nil {
			return nil, fmt.Errorf("marshal value for key %q: %w", k, err)
		}
		buf.Write(valBytes)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalJSON implements json.Marshaler for IRRecord as {"@Label":[...]}.
func (r IRRecord) MarshalJSON() ([]byte, error) {
	return MarshalCanonical(r)
}

// MarshalIRValue marshals an IRValue to JSON bytes.
func MarshalIRValue(v IRValue) ([]byte, error) {
	switch val := v.(type) {
	case nil, IRNull:
		return []byte("null"), nil
	case IRString:
		return json.Marshal(string(val))
	case IRInt:
		return json.Marshal(int64(val))
	case IRBool:
		return json.Marshal(bool(val))
	case IRArray:
		return marshalIRArray(val)
	case IRObject:
		return val.MarshalJSON()
	case IRRecord:
		return val.MarshalJSON()
	default:
		return nil, fmt.Errorf("unknown IRValue type: %T", v)
	}
}

// marshalIRArray marshals an IRArray to JSON bytes.
func marshalIRArray(arr IRArray) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')

	for i, elem := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		elemBytes, err := MarshalIRValue(elem)
		if err != nil {
			return nil, fmt.Errorf("array[%d]: %w", i, err)
		}
		buf.Write(elemBytes)
	}

	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// UnmarshalIRValue deserializes JSON into an IRValue with strict validation.
// Floats are rejected. JSON null becomes IRNull. An object with exactly one
// key of the form "@Label" whose value is an array becomes an IRRecord.
func UnmarshalIRValue(data []byte) (IRValue, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}

	return FromGo(raw)
}

// FromGo converts decoded JSON/YAML/CUE data (nil, bool, string, integers,
// json.Number, []any, map[string]any) into an IRValue.
func FromGo(v any) (IRValue, error) {
	switch val := v.(type) {
	case nil:
		return IRNull{}, nil
	case IRValue:
		return val, nil
	case bool:
		return IRBool(val), nil
	case string:
		return IRString(val), nil
	case int:
		return IRInt(val), nil
	case int64:
		return IRInt(val), nil
	case uint64:
		return IRInt(int64(val)), nil
	case json.Number:
		s := string(val)
		if strings.ContainsAny(s, ".eE") {
			return nil, fmt.Errorf("floats are forbidden in values: %s", val)
		}
		n, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("number out of int64 range: %s", val)
		}
		return IRInt(n), nil
	case float64, float32:
		return nil, fmt.Errorf("floats are forbidden in values: %v", val)
	case []any:
		arr := make(IRArray, len(val))
		for i, elem := range val {
			irElem, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			arr[i] = irElem
		}
		return arr, nil
	case map[string]any:
		if rec, ok, err := recordFromGo(val); ok || err != nil {
			return rec, err
		}
		obj := make(IRObject, len(val))
		for k, elem := range val {
			irElem, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", k, err)
			}
			obj[k] = irElem
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// recordFromGo recognises the {"@Label": [fields...]} record encoding.
func recordFromGo(m map[string]any) (IRValue, bool, error) {
	if len(m) != 1 {
		return nil, false, nil
	}
	for k, raw := range m {
		if !strings.HasPrefix(k, RecordPrefix) {
			return nil, false, nil
		}
		items, ok := raw.([]any)
		if !ok {
			return nil, true, fmt.Errorf("record %q: fields must be an array, got %T", k, raw)
		}
		fields := make([]IRValue, len(items))
		for i, item := range items {
			f, err := FromGo(item)
			if err != nil {
				return nil, true, fmt.Errorf("record %q field %d: %w", k, i, err)
			}
			fields[i] = f
		}
		return IRRecord{Label: strings.TrimPrefix(k, RecordPrefix), Fields: fields}, true, nil
	}
	return nil, false, nil
}

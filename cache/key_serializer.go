package cache

import (
	"encoding"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrUnstableKey is returned when an argument has no deterministic
// rendering. Callers should skip the cache for that call.
var ErrUnstableKey = errors.New("cache: argument has no stable key representation")

// KeySerializer builds a query key from an entity name and arbitrary filter
// values. Identical logical parameters must produce identical keys.
type KeySerializer interface {
	SerializeKey(entity string, args ...any) (string, error)
}

// defaultKeySerializer renders values with reflection and hands the parts
// to QueryKey. Plain strings render verbatim; every other value carries its
// type, and collection elements are length-framed, so distinct arguments
// never share a key.
type defaultKeySerializer struct{}

// NewDefaultKeySerializer creates a new instance of the default key serializer.
func NewDefaultKeySerializer() KeySerializer {
	return defaultKeySerializer{}
}

// SerializeKey renders every arg into one key part.
func (s defaultKeySerializer) SerializeKey(entity string, args ...any) (string, error) {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		part, err := s.serializeValue(arg)
		if err != nil {
			return "", err
		}
		parts = append(parts, part)
	}
	return QueryKey(entity, parts...), nil
}

var textMarshalerType = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()

// typeSigil starts every rendering that is not a plain string. Strings that
// happen to start with it get it doubled, so a string can never render the
// same as a value of another type.
const typeSigil = "~"

func (s defaultKeySerializer) serializeValue(v any) (string, error) {
	if v == nil {
		return typeSigil + "nil", nil
	}

	switch tv := v.(type) {
	case string:
		if strings.HasPrefix(tv, typeSigil) {
			return typeSigil + tv, nil
		}
		return tv, nil
	case time.Time:
		return typeSigil + "time:" + tv.UTC().Format(time.RFC3339Nano), nil
	case *time.Time:
		if tv == nil {
			return typeSigil + "nil", nil
		}
		return typeSigil + "time:" + tv.UTC().Format(time.RFC3339Nano), nil
	case time.Duration:
		return typeSigil + "duration:" + tv.String(), nil
	}

	rv := reflect.ValueOf(v)
	rt := rv.Type()

	if rt.Implements(textMarshalerType) && !(rt.Kind() == reflect.Ptr && rv.IsNil()) {
		text, err := v.(encoding.TextMarshaler).MarshalText()
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrUnstableKey, err)
		}
		return typeSigil + rt.String() + ":" + string(text), nil
	}

	switch rt.Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer, reflect.Uintptr:
		return "", fmt.Errorf("%w: %s", ErrUnstableKey, rt)

	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return typeSigil + "nil", nil
		}
		return s.serializeValue(rv.Elem().Interface())

	case reflect.Slice:
		if rv.IsNil() {
			return typeSigil + rt.String() + ":nil", nil
		}
		return s.serializeList(rv, rt)

	case reflect.Array:
		return s.serializeList(rv, rt)

	case reflect.Map:
		if rv.IsNil() {
			return typeSigil + rt.String() + ":nil", nil
		}
		return s.serializeMap(rv, rt)

	case reflect.Struct:
		return s.serializeStruct(rv, rt)

	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64,
		reflect.Complex64, reflect.Complex128,
		reflect.String:
		return typeSigil + rt.String() + ":" + fmt.Sprintf("%v", v), nil
	}

	return "", fmt.Errorf("%w: %s", ErrUnstableKey, rt)
}

// framed prefixes a rendered element with its byte length, so elements can
// hold any character without two different lists joining to the same text.
func framed(part string) string {
	return strconv.Itoa(len(part)) + ":" + part
}

// serializeList handles slices and arrays element by element.
func (s defaultKeySerializer) serializeList(rv reflect.Value, rt reflect.Type) (string, error) {
	length := rv.Len()
	parts := make([]string, length)
	for i := 0; i < length; i++ {
		part, err := s.serializeValue(rv.Index(i).Interface())
		if err != nil {
			return "", err
		}
		parts[i] = framed(part)
	}
	return typeSigil + rt.String() + "{" + strings.Join(parts, ",") + "}", nil
}

// serializeMap renders key=value pairs sorted by rendered key.
func (s defaultKeySerializer) serializeMap(rv reflect.Value, rt reflect.Type) (string, error) {
	pairs := make([]string, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		k, err := s.serializeValue(iter.Key().Interface())
		if err != nil {
			return "", err
		}
		v, err := s.serializeValue(iter.Value().Interface())
		if err != nil {
			return "", err
		}
		pairs = append(pairs, framed(k)+"="+framed(v))
	}

	sort.Strings(pairs)
	return typeSigil + rt.String() + "{" + strings.Join(pairs, ",") + "}", nil
}

// serializeStruct renders exported fields in declaration order. A struct
// with unexported fields is rejected: part of its state would be invisible
// to the key.
func (s defaultKeySerializer) serializeStruct(rv reflect.Value, rt reflect.Type) (string, error) {
	parts := make([]string, 0, rv.NumField())
	for i := 0; i < rv.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			return "", fmt.Errorf("%w: %s has unexported field %s", ErrUnstableKey, rt, field.Name)
		}
		part, err := s.serializeValue(rv.Field(i).Interface())
		if err != nil {
			return "", err
		}
		parts = append(parts, field.Name+"="+framed(part))
	}
	return typeSigil + rt.String() + "{" + strings.Join(parts, ",") + "}", nil
}

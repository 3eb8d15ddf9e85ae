/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package memoize

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"time"

	"github.com/acronis/go-admission/resultcache"
)

// Args represents heterogeneous call arguments: positional values and keyword values.
type Args struct {
	Positional []interface{}
	Keyword    map[string]interface{}
}

// Handle is implemented by arguments that represent a connection or a session.
// Such arguments never take part in the cache key.
type Handle interface {
	ConnectionHandle()
}

// Decorate returns a memoized version of compute. The key is keyPrefix followed by the identity
// and a digest of the positional arguments and the keyword arguments sorted by name.
// Connection and session handles are skipped, so calls that differ only in them share the key.
func Decorate[R any](
	cache *resultcache.Cache, identity string, compute Func[Args, R], ttl time.Duration, keyPrefix string, opts ...Options,
) Func[Args, R] {
	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}
	o.KeyPrefix = keyPrefix
	return Memoize(cache, compute, func(args Args) (string, error) {
		return Key(identity, args)
	}, ttl, o)
}

// keyArgMaxDepth limits nesting of an argument inspected for key derivation.
const keyArgMaxDepth = 32

var (
	jsonMarshalerType = reflect.TypeOf((*json.Marshaler)(nil)).Elem()
	textMarshalerType = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
)

// keyArg is the key material of a single argument. The type keeps values like int(1) and "1" apart.
type keyArg struct {
	Type  string      `json:"t"`
	Value interface{} `json:"v"`
}

// Key derives a deterministic cache key from the computation identity and its arguments.
// An argument that can't be encoded without losing information (e.g. a struct with unexported fields)
// makes Key return an error, so the call is never served a result computed for other arguments.
func Key(identity string, args Args) (string, error) {
	positional := make([]keyArg, 0, len(args.Positional))
	for i, arg := range args.Positional {
		if isHandle(arg) {
			continue
		}
		if err := checkKeyArg(reflect.ValueOf(arg), 0); err != nil {
			return "", fmt.Errorf("positional argument #%d: %w", i, err)
		}
		positional = append(positional, keyArg{Type: fmt.Sprintf("%T", arg), Value: arg})
	}
	keyword := make(map[string]keyArg, len(args.Keyword))
	for name, arg := range args.Keyword {
		if isHandle(arg) {
			continue
		}
		if err := checkKeyArg(reflect.ValueOf(arg), 0); err != nil {
			return "", fmt.Errorf("keyword argument %q: %w", name, err)
		}
		keyword[name] = keyArg{Type: fmt.Sprintf("%T", arg), Value: arg}
	}

	// encoding/json writes map keys in sorted order, so keyword order never affects the key.
	posData, err := json.Marshal(positional)
	if err != nil {
		return "", fmt.Errorf("encode positional arguments: %w", err)
	}
	kwData, err := json.Marshal(keyword)
	if err != nil {
		return "", fmt.Errorf("encode keyword arguments: %w", err)
	}

	h := sha256.New()
	_, _ = h.Write(posData)
	_, _ = h.Write([]byte{0})
	_, _ = h.Write(kwData)
	return identity + ":" + hex.EncodeToString(h.Sum(nil)[:16]), nil
}

// checkKeyArg reports values that encoding/json skips silently, so distinct arguments would share a key.
func checkKeyArg(v reflect.Value, depth int) error {
	if !v.IsValid() {
		return nil
	}
	if depth > keyArgMaxDepth {
		return errors.New("argument is nested too deeply")
	}
	t := v.Type()
	if t.Implements(jsonMarshalerType) || t.Implements(textMarshalerType) {
		return nil
	}
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			return nil
		}
		return checkKeyArg(v.Elem(), depth+1)
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() {
				embeddedType := f.Type
				if embeddedType.Kind() == reflect.Pointer {
					embeddedType = embeddedType.Elem()
				}
				if !f.Anonymous || embeddedType.Kind() != reflect.Struct {
					return fmt.Errorf("%s has unexported field %s", t, f.Name)
				}
			}
			if f.Tag.Get("json") == "-" {
				return fmt.Errorf("%s has field %s excluded from JSON", t, f.Name)
			}
			if err := checkKeyArg(v.Field(i), depth+1); err != nil {
				return err
			}
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			if err := checkKeyArg(v.Index(i), depth+1); err != nil {
				return err
			}
		}
	case reflect.Map:
		iter := v.MapRange()
		for iter.Next() {
			if err := checkKeyArg(iter.Value(), depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

func isHandle(v interface{}) bool {
	switch v.(type) {
	case Handle, context.Context, io.Closer, *sql.DB, *sql.Conn, *sql.Tx, *http.Client:
		return true
	}
	return false
}

/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package resultcache

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrUncacheable is returned (wrapped) when a value cannot be encoded for storage.
// It's not fatal: the caller still has the value, it's just not cached.
var ErrUncacheable = errors.New("value cannot be cached")

// Codec encodes values into payloads stored in the cache and decodes them back.
type Codec interface {
	Encode(v interface{}) ([]byte, error)
	Decode(payload []byte, v interface{}) error
}

// JSONCodec is a Codec that uses JSON encoding.
type JSONCodec struct{}

// Encode encodes v to JSON.
func (JSONCodec) Encode(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// Decode decodes JSON payload into v.
func (JSONCodec) Decode(payload []byte, v interface{}) error {
	return json.Unmarshal(payload, v)
}

// SetValue encodes the value with the cache codec and stores it by the key.
// If the value cannot be encoded, nothing is stored and an error wrapping ErrUncacheable is returned.
func SetValue[V any](c *Cache, key string, val V, ttl time.Duration) error {
	payload, err := c.codec.Encode(val)
	if err != nil {
		c.metrics.IncUncacheable()
		return fmt.Errorf("encode value for key %q: %w: %v", key, ErrUncacheable, err)
	}
	c.Set(key, payload, ttl)
	return nil
}

// StoreValue is like SetValue but also returns the value decoded back from the stored payload,
// so the caller observes exactly what later GetValue calls return for the key.
func StoreValue[V any](c *Cache, key string, val V, ttl time.Duration) (stored V, err error) {
	payload, err := c.codec.Encode(val)
	if err != nil {
		c.metrics.IncUncacheable()
		return stored, fmt.Errorf("encode value for key %q: %w: %v", key, ErrUncacheable, err)
	}
	if err = c.codec.Decode(payload, &stored); err != nil {
		c.metrics.IncUncacheable()
		return stored, fmt.Errorf("decode encoded value for key %q: %w: %v", key, ErrUncacheable, err)
	}
	c.Set(key, payload, ttl)
	return stored, nil
}

// GetValue returns the decoded value stored by the key.
// The second return value is false on a miss. A stored null is a hit with the zero value.
func GetValue[V any](c *Cache, key string) (val V, ok bool, err error) {
	payload, ok := c.Get(key)
	if !ok {
		return val, false, nil
	}
	if err = c.codec.Decode(payload, &val); err != nil {
		return val, false, fmt.Errorf("decode value for key %q: %w", key, err)
	}
	return val, true, nil
}

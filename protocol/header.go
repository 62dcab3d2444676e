package protocol

import "strings"

// Field is a single header line with its key as it appeared on the wire.
type Field struct {
	Key   string
	Value string
}

// Header is an ordered header mapping with case-insensitive keys.
//
// Set on an existing key replaces that field in place, so a duplicate key in a
// request keeps the first key's position and the last value (last value wins).
type Header struct {
	fields []Field
}

func (h *Header) index(key string) int {
	for i := range h.fields {
		if strings.EqualFold(h.fields[i].Key, key) {
			return i
		}
	}
	return -1
}

// Set stores value under key, replacing any existing field with the same key
func (h *Header) Set(key, value string) {
	if i := h.index(key); i >= 0 {
		h.fields[i] = Field{Key: key, Value: value}
		return
	}
	h.fields = append(h.fields, Field{Key: key, Value: value})
}

// Get returns the value for key, or "" when absent
func (h *Header) Get(key string) string {
	v, _ := h.Lookup(key)
	return v
}

// Lookup returns the value for key and whether it was present
func (h *Header) Lookup(key string) (string, bool) {
	if i := h.index(key); i >= 0 {
		return h.fields[i].Value, true
	}
	return "", false
}

// Del removes key
func (h *Header) Del(key string) {
	if i := h.index(key); i >= 0 {
		h.fields = append(h.fields[:i], h.fields[i+1:]...)
	}
}

// Len returns the number of distinct keys
func (h *Header) Len() int {
	return len(h.fields)
}

// Fields returns a copy of the fields in insertion order
func (h *Header) Fields() []Field {
	out := make([]Field, len(h.fields))
	copy(out, h.fields)
	return out
}

// Clone returns an independent copy of h
func (h *Header) Clone() Header {
	return Header{fields: h.Fields()}
}

// Merge sets every field of other onto h, in other's order
func (h *Header) Merge(other Header) {
	for _, f := range other.fields {
		h.Set(f.Key, f.Value)
	}
}

// Package jsonx is the JSON codec used for backend payloads.
package jsonx

import "github.com/bytedance/sonic"

var api = sonic.ConfigStd

// Marshal encodes v with the Sonic encoder using encoding/json compatible settings.
func Marshal(v any) ([]byte, error) {
	return api.Marshal(v)
}

// Unmarshal decodes data into v. It is a drop-in replacement for encoding/json.Unmarshal.
func Unmarshal(data []byte, v any) error {
	return api.Unmarshal(data, v)
}

// Valid reports whether data is a valid JSON encoding.
func Valid(data []byte) bool {
	return api.Valid(data)
}


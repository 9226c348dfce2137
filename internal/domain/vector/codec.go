// Package vector holds the on-disk and on-wire byte form of embedding vectors.
//
// A vector is a flat sequence of IEEE-754 float32 values, 4 bytes each, little-endian.
// Decode(Encode(v)) reproduces v bit for bit, NaN payloads and signed zeros included.
package vector

import (
	"encoding/binary"
	"fmt"
	"math"
)

// BytesPerElement is the encoded size of one vector component.
const BytesPerElement = 4

// Encode serializes v.
func Encode(v []float32) []byte {
	buf := make([]byte, len(v)*BytesPerElement)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*BytesPerElement:], math.Float32bits(f))
	}
	return buf
}

// Decode deserializes data produced by Encode.
func Decode(data []byte) ([]float32, error) {
	if len(data)%BytesPerElement != 0 {
		return nil, fmt.Errorf("invalid vector data: len=%d (not multiple of %d)", len(data), BytesPerElement)
	}
	vec := make([]float32, len(data)/BytesPerElement)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*BytesPerElement:]))
	}
	return vec, nil
}

package sqlite

import (
	"encoding/binary"
	"errors"
	"math"
)

var errInvalidVector = errors.New("invalid vector encoding")

// encodeVector writes a little-endian int32 length followed by the
// little-endian float32 values.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4+4*len(v))
	binary.LittleEndian.PutUint32(buf, uint32(len(v)))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4+4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(data []byte) ([]float32, error) {
	if len(data) < 4 {
		return nil, errInvalidVector
	}
	n := int(binary.LittleEndian.Uint32(data))
	if len(data)-4 != 4*n {
		return nil, errInvalidVector
	}
	v := make([]float32, n)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4+4*i:]))
	}
	return v, nil
}

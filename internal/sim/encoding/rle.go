package encoding

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
)

// EncodeMask encodes a barrier mask into base64(varint runs). Runs alternate
// clear, barrier, clear, ... and always start with a clear run, which may be
// zero-length.
func EncodeMask(mask []bool) string {
	var buf bytes.Buffer
	var tmp [binary.MaxVarintLen64]byte

	want := false
	i := 0
	for i < len(mask) {
		run := 0
		for i+run < len(mask) && mask[i+run] == want {
			run++
		}
		n := binary.PutUvarint(tmp[:], uint64(run))
		buf.Write(tmp[:n])
		i += run
		want = !want
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// DecodeMask decodes EncodeMask output; the runs must cover exactly size cells.
func DecodeMask(b64 string, size int) ([]bool, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	out := make([]bool, 0, size)
	v := false
	for i := 0; i < len(raw); {
		run, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		if uint64(len(out))+run > uint64(size) {
			return nil, fmt.Errorf("mask overruns %d cells", size)
		}
		for k := uint64(0); k < run; k++ {
			out = append(out, v)
		}
		v = !v
	}
	if len(out) != size {
		return nil, fmt.Errorf("mask has %d cells, want %d", len(out), size)
	}
	return out, nil
}

// EncodeField packs values as little-endian float32 and base64-encodes them.
func EncodeField(values []float64) string {
	raw := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(float32(v)))
	}
	return base64.StdEncoding.EncodeToString(raw)
}

func DecodeField(b64 string) ([]float64, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("field length %d is not a multiple of 4", len(raw))
	}
	out := make([]float64, len(raw)/4)
	for i := range out {
		out[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:])))
	}
	return out, nil
}

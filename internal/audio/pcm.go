package audio

import (
	"encoding/binary"
)

// FromPCM16LE decodes raw little-endian signed 16-bit interleaved samples.
// A trailing partial frame is dropped.
func FromPCM16LE(data []byte, f Format) (Buffer, error) {
	if err := f.Validate(); err != nil {
		return Buffer{}, err
	}
	frameBytes := 2 * f.Channels
	data = data[:len(data)-len(data)%frameBytes]
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[2*i:]))
	}
	return Buffer{format: f, samples: samples}, nil
}

// PCM16LE returns the samples of b as raw little-endian bytes.
func (b Buffer) PCM16LE() []byte {
	out := make([]byte, 2*len(b.samples))
	for i, s := range b.samples {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(s))
	}
	return out
}

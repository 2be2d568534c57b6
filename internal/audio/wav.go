package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// DecodeWAV reads a PCM WAV stream of any supported bit depth into a
// 16-bit Buffer.
func DecodeWAV(r io.ReadSeeker) (Buffer, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return Buffer{}, ErrInvalidWAV
	}
	pcm, err := dec.FullPCMBuffer()
	if err != nil {
		return Buffer{}, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
	}
	if pcm == nil || pcm.Format == nil {
		return Buffer{}, ErrInvalidWAV
	}

	shift, err := depthShift(int(dec.BitDepth))
	if err != nil {
		return Buffer{}, err
	}

	f := Format{SampleRate: pcm.Format.SampleRate, Channels: pcm.Format.NumChannels}
	if err := f.Validate(); err != nil {
		return Buffer{}, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
	}

	n := len(pcm.Data) - len(pcm.Data)%f.Channels
	samples := make([]int16, n)
	for i, v := range pcm.Data[:n] {
		switch {
		case dec.BitDepth == 8:
			samples[i] = int16((v - 128) << 8)
		case shift > 0:
			samples[i] = int16(v >> shift)
		default:
			samples[i] = int16(v)
		}
	}
	return Buffer{format: f, samples: samples}, nil
}

// ParseWAV decodes WAV bytes.
func ParseWAV(data []byte) (Buffer, error) {
	return DecodeWAV(bytes.NewReader(data))
}

// ReadWAVFile decodes the WAV file at path.
func ReadWAVFile(path string) (Buffer, error) {
	f, err := os.Open(path) // #nosec G304 -- path is user-selected input
	if err != nil {
		return Buffer{}, err
	}
	defer func() { _ = f.Close() }()
	return DecodeWAV(f)
}

func depthShift(bits int) (int, error) {
	switch bits {
	case 8, 16:
		return 0, nil
	case 24:
		return 8, nil
	case 32:
		return 16, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrUnsupportedBitDepth, bits)
	}
}

// EncodeWAV writes b as 16-bit PCM WAV.
func EncodeWAV(w io.WriteSeeker, b Buffer) error {
	if err := b.format.Validate(); err != nil {
		return err
	}
	enc := wav.NewEncoder(w, b.format.SampleRate, 16, b.format.Channels, 1)
	data := make([]int, len(b.samples))
	for i, s := range b.samples {
		data[i] = int(s)
	}
	ib := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: b.format.Channels,
			SampleRate:  b.format.SampleRate,
		},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(ib); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav: %w", err)
	}
	return nil
}

// WAVBytes returns b encoded as a WAV file in memory.
func WAVBytes(b Buffer) ([]byte, error) {
	var ws writeSeeker
	if err := EncodeWAV(&ws, b); err != nil {
		return nil, err
	}
	return ws.buf, nil
}

// WriteWAVFile encodes b to path, replacing any existing file.
func WriteWAVFile(path string, b Buffer) (err error) {
	f, err := os.Create(path) // #nosec G304 -- output path chosen by the user
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return EncodeWAV(f, b)
}

// writeSeeker is an in-memory io.WriteSeeker; the WAV encoder seeks back to
// patch chunk sizes on Close.
type writeSeeker struct {
	buf []byte
	pos int
}

func (w *writeSeeker) Write(p []byte) (int, error) {
	end := w.pos + len(p)
	if end > len(w.buf) {
		if end > cap(w.buf) {
			grown := make([]byte, end, max(end, 2*cap(w.buf)))
			copy(grown, w.buf)
			w.buf = grown
		} else {
			w.buf = w.buf[:end]
		}
	}
	copy(w.buf[w.pos:], p)
	w.pos = end
	return len(p), nil
}

func (w *writeSeeker) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(w.pos) + offset
	case io.SeekEnd:
		abs = int64(len(w.buf)) + offset
	default:
		return 0, errors.New("invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("negative position")
	}
	w.pos = int(abs)
	return abs, nil
}

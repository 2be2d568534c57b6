package audio

import "errors"

// ErrFormatMismatch indicates two buffers with different sample rates or
// channel counts were combined without conversion.
var ErrFormatMismatch = errors.New("audio format mismatch")

// ErrInvalidFormat indicates a non-positive sample rate or channel count.
var ErrInvalidFormat = errors.New("invalid audio format")

// ErrInvalidWAV indicates the input is not a decodable PCM WAV stream.
var ErrInvalidWAV = errors.New("invalid WAV data")

// ErrUnsupportedBitDepth indicates a WAV bit depth other than 8, 16, 24 or 32.
var ErrUnsupportedBitDepth = errors.New("unsupported WAV bit depth")

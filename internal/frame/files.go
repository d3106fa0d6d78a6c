package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"os"
	"path/filepath"
)

// SyncRotation is applied to the stored sync word before correlation.
var SyncRotation = complex64(cmplx.Rect(1, math.Pi/4))

// ErrMalformed reports a sync word or reference file whose contents do not
// match the session parameters.
var ErrMalformed = errors.New("malformed frame file")

// SyncWord is the correlation template derived from the start of a
// transmitted baseband vector.
type SyncWord []complex64

// Rotated returns a copy multiplied by SyncRotation.
func (w SyncWord) Rotated() SyncWord {
	out := make(SyncWord, len(w))
	for i, v := range w {
		out[i] = v * SyncRotation
	}
	return out
}

// SyncWordFromVector cuts the sync word out of a modulated baseband vector.
func SyncWordFromVector(vec []complex64, length int) (SyncWord, error) {
	if length <= 0 || length > len(vec) {
		return nil, fmt.Errorf("sync word length %d for vector of %d: %w", length, len(vec), ErrMalformed)
	}
	return append(SyncWord(nil), vec[:length]...), nil
}

// WriteSyncWord stores w as little-endian float32 I/Q pairs.
func WriteSyncWord(path string, w SyncWord) error {
	buf := make([]byte, 8*len(w))
	for i, v := range w {
		binary.LittleEndian.PutUint32(buf[8*i:], math.Float32bits(real(v)))
		binary.LittleEndian.PutUint32(buf[8*i+4:], math.Float32bits(imag(v)))
	}
	return writeFile(path, buf)
}

// LoadSyncWord reads a stored sync word and returns it rotated, ready for
// use as a correlation template.
func LoadSyncWord(path string) (SyncWord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load sync word: %w", err)
	}
	if len(data) == 0 || len(data)%8 != 0 {
		return nil, fmt.Errorf("sync word %s has %d bytes: %w", path, len(data), ErrMalformed)
	}
	w := make(SyncWord, len(data)/8)
	for i := range w {
		re := math.Float32frombits(binary.LittleEndian.Uint32(data[8*i:]))
		im := math.Float32frombits(binary.LittleEndian.Uint32(data[8*i+4:]))
		w[i] = complex(re, im)
	}
	return w.Rotated(), nil
}

// Reference holds the expected symbol indices of one or more frames.
type Reference struct {
	frames [][]uint8
}

// NewReference builds a reference from frames of symbol indices.
func NewReference(frames [][]int) Reference {
	ref := Reference{frames: make([][]uint8, len(frames))}
	for i, f := range frames {
		ref.frames[i] = make([]uint8, len(f))
		for j, v := range f {
			ref.frames[i][j] = uint8(v)
		}
	}
	return ref
}

// Frames is the number of frames in the reference.
func (r Reference) Frames() int { return len(r.frames) }

// Frame returns reference frame i modulo Frames.
func (r Reference) Frame(i int64) []uint8 {
	n := int64(len(r.frames))
	if n == 0 {
		return nil
	}
	return r.frames[((i%n)+n)%n]
}

// WriteReference stores the reference as one byte per symbol index.
func WriteReference(path string, r Reference) error {
	var buf []byte
	for _, f := range r.frames {
		buf = append(buf, f...)
	}
	return writeFile(path, buf)
}

// LoadReference reads a reference file and splits it into frames of
// symbolsPerFrame indices, each below order.
func LoadReference(path string, symbolsPerFrame, order int) (Reference, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Reference{}, fmt.Errorf("load reference: %w", err)
	}
	if symbolsPerFrame <= 0 || len(data) == 0 || len(data)%symbolsPerFrame != 0 {
		return Reference{}, fmt.Errorf("reference %s has %d bytes for %d-symbol frames: %w",
			path, len(data), symbolsPerFrame, ErrMalformed)
	}
	for i, v := range data {
		if int(v) >= order {
			return Reference{}, fmt.Errorf("reference %s symbol %d is %d for order %d: %w", path, i, v, order, ErrMalformed)
		}
	}
	ref := Reference{}
	for off := 0; off < len(data); off += symbolsPerFrame {
		ref.frames = append(ref.frames, data[off:off+symbolsPerFrame])
	}
	return ref, nil
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

package sdr

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// SampleFormat selects how samples are laid out in files and on sockets.
type SampleFormat int

const (
	// CF32 is interleaved little-endian float32 I/Q, the layout of a raw
	// complex64 buffer.
	CF32 SampleFormat = iota
	// SC16 is interleaved little-endian int16 I/Q at full scale 32767, the
	// layout of AD9361 DMA buffers.
	SC16
)

// ParseSampleFormat maps "cf32" and "sc16" to a SampleFormat; empty means CF32.
func ParseSampleFormat(s string) (SampleFormat, error) {
	switch s {
	case "", "cf32":
		return CF32, nil
	case "sc16":
		return SC16, nil
	}
	return CF32, fmt.Errorf("unknown sample format %q", s)
}

func (f SampleFormat) String() string {
	if f == SC16 {
		return "sc16"
	}
	return "cf32"
}

// Size is the number of bytes per complex sample.
func (f SampleFormat) Size() int {
	if f == SC16 {
		return 4
	}
	return 8
}

// Encode appends iq to dst in format f.
func (f SampleFormat) Encode(dst []byte, iq []complex64) []byte {
	for _, v := range iq {
		if f == SC16 {
			dst = binary.LittleEndian.AppendUint16(dst, uint16(floatToInt16(real(v))))
			dst = binary.LittleEndian.AppendUint16(dst, uint16(floatToInt16(imag(v))))
			continue
		}
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(real(v)))
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(imag(v)))
	}
	return dst
}

// Decode converts whole samples from src; a trailing partial sample is ignored.
func (f SampleFormat) Decode(src []byte) []complex64 {
	size := f.Size()
	out := make([]complex64, len(src)/size)
	for n := range out {
		b := src[n*size:]
		if f == SC16 {
			i := int16(binary.LittleEndian.Uint16(b))
			q := int16(binary.LittleEndian.Uint16(b[2:]))
			out[n] = complex(float32(i)/32768, float32(q)/32768)
			continue
		}
		out[n] = complex(
			math.Float32frombits(binary.LittleEndian.Uint32(b)),
			math.Float32frombits(binary.LittleEndian.Uint32(b[4:])))
	}
	return out
}

func floatToInt16(v float32) int16 {
	scaled := int(math.Round(float64(v * 32767)))
	if scaled > math.MaxInt16 {
		return math.MaxInt16
	}
	if scaled < math.MinInt16 {
		return math.MinInt16
	}
	return int16(scaled)
}

// readBlock reads up to n samples. A short final block is returned with a nil
// error; the following call reports io.EOF.
func readBlock(r io.Reader, f SampleFormat, n int, buf []byte) ([]complex64, error) {
	buf = buf[:n*f.Size()]
	got, err := io.ReadFull(r, buf)
	switch {
	case err == io.ErrUnexpectedEOF:
		if got < f.Size() {
			return nil, io.EOF
		}
	case err != nil:
		return nil, err
	}
	return f.Decode(buf[:got]), nil
}

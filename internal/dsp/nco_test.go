package dsp

import (
	"math"
	"math/cmplx"
	"testing"
)

func TestNCOMixRoundTrip(t *testing.T) {
	fs := 2_457_600.0
	src := make([]complex64, 4096)
	for i := range src {
		src[i] = complex(float32(math.Cos(float64(i)/7)), float32(math.Sin(float64(i)/11)))
	}
	up := NewNCO(503e3, fs).Mix(nil, src)
	down := NewNCO(-503e3, fs).Mix(nil, up)
	for i := range src {
		if d := cmplx.Abs(complex128(down[i] - src[i])); d > 1e-5 {
			t.Fatalf("sample %d differs by %g", i, d)
		}
	}
}

func TestNCOSeekMatchesContinuous(t *testing.T) {
	ones := make([]complex64, 100)
	for i := range ones {
		ones[i] = 1
	}
	whole := NewNCO(1234, 48000).Mix(nil, ones)

	o := NewNCO(1234, 48000)
	o.Seek(60)
	tail := o.Mix(nil, ones[60:])
	for i := range tail {
		if d := cmplx.Abs(complex128(tail[i] - whole[60+i])); d > 1e-6 {
			t.Fatalf("sample %d differs by %g", 60+i, d)
		}
	}
	if o.Position() != 100 {
		t.Fatalf("position %d", o.Position())
	}
	o.Reset()
	if o.Position() != 0 {
		t.Fatalf("reset position %d", o.Position())
	}
}

func TestNCOPhaseStartsAtZero(t *testing.T) {
	out := NewNCO(777, 1000).Mix(nil, []complex64{1})
	if out[0] != 1 {
		t.Fatalf("first sample %v", out[0])
	}
}

package sdr

import (
	"context"
	"errors"
	"io"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func ramp(n int) []complex64 {
	out := make([]complex64, n)
	for i := range out {
		out[i] = complex(float32(i)/float32(n), -float32(i)/float32(n))
	}
	return out
}

func TestLoopbackDelayAndGain(t *testing.T) {
	ctx := context.Background()
	l := NewLoopback()
	require.NoError(t, l.Init(ctx, Config{DelaySamples: 5, Gain: 2}))

	require.NoError(t, l.TX(ctx, []complex64{1, 1i}))
	require.NoError(t, l.TX(ctx, []complex64{-1}))
	require.NoError(t, l.Close())

	first, err := l.RX(ctx)
	require.NoError(t, err)
	assert.Equal(t, []complex64{0, 0, 0, 0, 0, 2, 2i}, first)
	second, err := l.RX(ctx)
	require.NoError(t, err)
	assert.Equal(t, []complex64{-2}, second, "delay applies once")

	_, err = l.RX(ctx)
	assert.ErrorIs(t, err, io.EOF)
	assert.ErrorIs(t, l.TX(ctx, []complex64{1}), ErrClosed)
}

func TestLoopbackNoisePower(t *testing.T) {
	ctx := context.Background()
	l := NewLoopback()
	require.NoError(t, l.Init(ctx, Config{NoiseStd: 0.5, Seed: 7}))
	require.NoError(t, l.TX(ctx, make([]complex64, 20000)))
	got, err := l.RX(ctx)
	require.NoError(t, err)

	var p float64
	for _, v := range got {
		p += float64(real(v)*real(v) + imag(v)*imag(v))
	}
	p /= float64(len(got))
	assert.InDelta(t, 0.25, p, 0.01)
}

func TestLoopbackBackPressure(t *testing.T) {
	l := NewLoopback()
	require.NoError(t, l.Init(context.Background(), Config{Depth: 1}))
	require.NoError(t, l.TX(context.Background(), []complex64{1}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.TX(ctx, []complex64{2})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	rxCtx, rxCancel := context.WithCancel(context.Background())
	rxCancel()
	l2 := NewLoopback()
	require.NoError(t, l2.Init(context.Background(), Config{}))
	_, err = l2.RX(rxCtx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSampleFormatRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 64).Draw(t, "n")
		iq := make([]complex64, n)
		for i := range iq {
			re := rapid.Float32Range(-1, 1).Draw(t, "re")
			im := rapid.Float32Range(-1, 1).Draw(t, "im")
			iq[i] = complex(re, im)
		}
		got := CF32.Decode(CF32.Encode(nil, iq))
		if len(iq) > 0 && !assert.ObjectsAreEqual(iq, got) {
			t.Fatalf("cf32 mismatch")
		}
		sc := SC16.Decode(SC16.Encode(nil, iq))
		for i := range iq {
			if math.Abs(float64(real(sc[i]-iq[i]))) > 1e-4 || math.Abs(float64(imag(sc[i]-iq[i]))) > 1e-4 {
				t.Fatalf("sc16 sample %d: %v vs %v", i, sc[i], iq[i])
			}
		}
	})
}

func TestSC16Clips(t *testing.T) {
	got := SC16.Decode(SC16.Encode(nil, []complex64{complex(3, -3)}))
	assert.InDelta(t, 32767.0/32768, real(got[0]), 1e-9)
	assert.InDelta(t, -32768.0/32768, imag(got[0]), 1e-9)
}

func TestParseSampleFormat(t *testing.T) {
	for in, want := range map[string]SampleFormat{"": CF32, "cf32": CF32, "sc16": SC16} {
		got, err := ParseSampleFormat(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseSampleFormat("cs8")
	assert.Error(t, err)
}

func TestFileRoundTripWithShortLastBlock(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "iq.cf32")
	sink, err := NewSink("file")
	require.NoError(t, err)
	require.NoError(t, sink.Init(ctx, Config{URI: path}))
	in := ramp(250)
	require.NoError(t, sink.TX(ctx, in[:100]))
	require.NoError(t, sink.TX(ctx, in[100:]))
	require.NoError(t, sink.Close())

	src, err := NewSource("file")
	require.NoError(t, err)
	require.NoError(t, src.Init(ctx, Config{URI: path, BlockSize: 100}))
	defer src.Close()

	var got []complex64
	var sizes []int
	for {
		blk, err := src.RX(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		sizes = append(sizes, len(blk))
		got = append(got, blk...)
	}
	assert.Equal(t, []int{100, 100, 50}, sizes)
	assert.Equal(t, in, got)
}

func TestFileSourceMissing(t *testing.T) {
	err := (&FileSource{}).Init(context.Background(), Config{URI: filepath.Join(t.TempDir(), "nope")})
	assert.Error(t, err)
}

func TestTCPStream(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	src := &TCPSource{}
	require.NoError(t, src.Init(ctx, Config{URI: "127.0.0.1:0", BlockSize: 64, Format: SC16}))
	defer src.Close()

	in := ramp(200)
	errc := make(chan error, 1)
	go func() {
		sink := &TCPSink{}
		if err := sink.Init(ctx, Config{URI: src.Addr().String(), Format: SC16}); err != nil {
			errc <- err
			return
		}
		if err := sink.TX(ctx, in); err != nil {
			errc <- err
			return
		}
		errc <- sink.Close()
	}()

	var got []complex64
	for {
		blk, err := src.RX(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		got = append(got, blk...)
	}
	require.NoError(t, <-errc)
	require.Len(t, got, len(in))
	for i := range in {
		assert.InDelta(t, real(in[i]), real(got[i]), 1e-4)
		assert.InDelta(t, imag(in[i]), imag(got[i]), 1e-4)
	}
}

func TestTCPSinkGivesUp(t *testing.T) {
	ctx := context.Background()
	// reserve a port with nothing listening on it
	listener := &TCPSource{}
	require.NoError(t, listener.Init(ctx, Config{URI: "127.0.0.1:0"}))
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())

	sink := &TCPSink{}
	err := sink.Init(ctx, Config{URI: addr, DialTimeout: 300 * time.Millisecond})
	assert.Error(t, err)
}

func TestUnknownBackends(t *testing.T) {
	_, err := NewSink("pluto")
	assert.Error(t, err)
	_, err = NewSource("pluto")
	assert.Error(t, err)
}

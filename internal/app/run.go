package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rjboer/gofhss/internal/logging"
	"github.com/rjboer/gofhss/internal/mdns"
	"github.com/rjboer/gofhss/internal/rx"
	"github.com/rjboer/gofhss/internal/sdr"
	"github.com/rjboer/gofhss/internal/ser"
	"github.com/rjboer/gofhss/internal/tx"
)

// discoverTimeout bounds the mDNS browse for a receiver stream.
const discoverTimeout = 3 * time.Second

// observedSource lets the monitor see every block and the receiver counters
// between blocks.
type observedSource struct {
	src  sdr.Source
	r    *rx.Receiver
	mon  *Monitor
	read bool
}

func (o *observedSource) RX(ctx context.Context) ([]complex64, error) {
	if o.read {
		o.mon.Tick(o.r.Stats())
	}
	blk, err := o.src.RX(ctx)
	if err != nil {
		return nil, err
	}
	o.read = true
	o.mon.Observe(blk)
	return blk, nil
}

// Receive runs r over src until the stream ends or ctx is cancelled, feeding
// every frame to mon.
func Receive(ctx context.Context, r *rx.Receiver, src sdr.Source, mon *Monitor) error {
	r.OnAcquisition(mon.Acquired)
	obs := &observedSource{src: src, r: r, mon: mon}
	err := r.Run(ctx, obs, func(f rx.RecoveredFrame) { mon.Frame(f) })
	mon.Tick(r.Stats())
	return err
}

// Transmit runs t into sink and closes the sink afterwards.
func Transmit(ctx context.Context, t *tx.Transmitter, sink sdr.Sink) error {
	err := t.Run(ctx, sink)
	return errors.Join(err, sink.Close())
}

// Simulate runs the transmitter and receiver of sess over a loopback channel
// and returns the final SER statistics.
func Simulate(ctx context.Context, sess *Session, mon *Monitor) (ser.Statistics, error) {
	rcfg, err := sess.RadioConfig()
	if err != nil {
		return ser.Statistics{}, err
	}
	loop := sdr.NewLoopback()
	if err := loop.Init(ctx, rcfg); err != nil {
		return ser.Statistics{}, err
	}

	start := sess.StartHop()
	t, err := sess.NewTransmitter(start)
	if err != nil {
		return ser.Statistics{}, err
	}
	r, err := sess.NewReceiver(start)
	if err != nil {
		return ser.Statistics{}, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	txErr := make(chan error, 1)
	go func() {
		txErr <- Transmit(ctx, t, loop)
	}()

	rxErr := Receive(ctx, r, loop, mon)
	cancel()
	terr := <-txErr
	if errors.Is(terr, context.Canceled) && rxErr == nil {
		terr = nil
	}

	st := mon.Measurement().Statistics()
	rs := r.Stats()
	sess.logger.Info("simulation finished",
		logging.F("hops", t.Sent()),
		logging.F("frames", st.Frames),
		logging.F("ser", st.SER),
		logging.F("acquisitions", rs.Accepted),
		logging.F("overflows", rs.Overflows),
		logging.F("link_state", string(mon.Link().State())))
	return st, errors.Join(rxErr, terr)
}

// OpenSink initializes the configured file or tcp sink. A tcp sink without
// an address looks up a receiver advertising a matching stream over mDNS.
func OpenSink(ctx context.Context, sess *Session) (sdr.Sink, error) {
	rcfg, err := sess.RadioConfig()
	if err != nil {
		return nil, err
	}
	sink, err := sdr.NewSink(sess.Config.Radio.Backend)
	if err != nil {
		return nil, err
	}
	if ts, ok := sink.(*sdr.TCPSink); ok {
		ts.Logger = sess.logger
		if rcfg.URI == "" {
			if rcfg.URI, err = discoverStream(ctx, sess); err != nil {
				return nil, err
			}
		}
	}
	if err := sink.Init(ctx, rcfg); err != nil {
		return nil, err
	}
	return sink, nil
}

// OpenSource initializes the configured file or tcp source.
func OpenSource(ctx context.Context, sess *Session) (sdr.Source, error) {
	rcfg, err := sess.RadioConfig()
	if err != nil {
		return nil, err
	}
	src, err := sdr.NewSource(sess.Config.Radio.Backend)
	if err != nil {
		return nil, err
	}
	if err := src.Init(ctx, rcfg); err != nil {
		return nil, err
	}
	return src, nil
}

// StreamTXT describes a receiver stream for mDNS.
func StreamTXT(sess *Session) []string {
	cfg := sess.Config
	return mdns.TXT(map[string]string{
		"rate":   strconv.Itoa(cfg.HopRate),
		"psk":    strconv.Itoa(cfg.ModulationOrder),
		"seed":   strconv.FormatInt(cfg.Seed, 10),
		"format": cfg.Radio.Format,
	})
}

// matchesStream reports whether h advertises a stream for sess.
func matchesStream(h mdns.Host, sess *Session) bool {
	want := StreamTXT(sess)
	for _, kv := range want {
		found := false
		for _, have := range h.TXT {
			if have == kv {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func discoverStream(ctx context.Context, sess *Session) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, discoverTimeout)
	defer cancel()
	hosts, err := mdns.Discover(ctx, mdns.StreamService)
	if err != nil {
		return "", err
	}
	for _, h := range hosts {
		if !matchesStream(h, sess) {
			continue
		}
		if addr, ok := h.Addr(); ok {
			sess.logger.Info("receiver discovered", logging.F("instance", h.Instance), logging.F("addr", addr))
			return addr, nil
		}
	}
	return "", fmt.Errorf("no receiver advertising %s for hop rate %d psk %d",
		mdns.StreamService, sess.Config.HopRate, sess.Config.ModulationOrder)
}

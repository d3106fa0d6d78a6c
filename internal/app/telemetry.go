package app

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/rjboer/gofhss/internal/logging"
	"github.com/rjboer/gofhss/internal/mdns"
	"github.com/rjboer/gofhss/internal/ser"
	"github.com/rjboer/gofhss/internal/telemetry"
)

// spectrumInterval is the minimum time between spectrum snapshots.
const spectrumInterval = 500 * time.Millisecond

// Surfaces is the running telemetry of a receiver.
type Surfaces struct {
	Hub      *telemetry.Hub
	Reporter telemetry.Reporter
	Spectrum *telemetry.SpectrumMonitor
	ads      []*mdns.Advertisement
	csv      *ser.CSVLog
}

// StartTelemetry builds the hub and, when configured, serves it over HTTP and
// advertises it. Everything stops when ctx is cancelled or Close is called.
func StartTelemetry(ctx context.Context, sess *Session, source string) (*Surfaces, error) {
	cfg := sess.Config
	hub := telemetry.NewHub(cfg.Telemetry.HistoryLimit, sess.logger)
	s := &Surfaces{
		Hub:      hub,
		Reporter: telemetry.MultiReporter{hub, telemetry.NewStdoutReporter(sess.logger)},
		Spectrum: telemetry.NewSpectrumMonitor(hub, source, cfg.SampleRate, cfg.CarrierOffsetHz, cfg.BandwidthHz, spectrumInterval),
	}
	if cfg.Telemetry.WebAddr == "" {
		return s, nil
	}

	ln, err := net.Listen("tcp", cfg.Telemetry.WebAddr)
	if err != nil {
		return nil, fmt.Errorf("telemetry listen: %w", err)
	}
	go telemetry.NewWebServer(cfg.Telemetry.WebAddr, hub).Serve(ctx, ln)

	if cfg.Telemetry.Advertise {
		port := ln.Addr().(*net.TCPAddr).Port
		ad, err := mdns.Advertise(instanceName(source), mdns.TelemetryService, port, StreamTXT(sess))
		if err != nil {
			sess.logger.Warn("telemetry advertisement failed", logging.F("err", err))
		} else {
			s.ads = append(s.ads, ad)
		}
	}
	return s, nil
}

// AdvertiseStream announces a tcp receiver stream listening on port.
func (s *Surfaces) AdvertiseStream(sess *Session, port int) {
	ad, err := mdns.Advertise(instanceName("hoprx"), mdns.StreamService, port, StreamTXT(sess))
	if err != nil {
		sess.logger.Warn("stream advertisement failed", logging.F("err", err))
		return
	}
	s.ads = append(s.ads, ad)
}

// NewMonitor builds the SER measurement and link monitor of sess reporting
// to these surfaces, with the per-frame CSV log when one is configured.
func (s *Surfaces) NewMonitor(sess *Session) (*Monitor, error) {
	meas, err := sess.NewMeasurement()
	if err != nil {
		return nil, err
	}
	mon := NewMonitor(meas, NewLinkMonitor(sess.Config.LossHops, sess.logger), s.Reporter, sess.logger)
	mon.SetSpectrum(s.Spectrum)
	if pattern := sess.Config.Telemetry.CSVPattern; pattern != "" {
		csvLog, err := ser.NewCSVLog(pattern)
		if err != nil {
			return nil, err
		}
		s.csv = csvLog
		mon.SetCSVLog(csvLog)
	}
	return mon, nil
}

// Close withdraws all advertisements and closes the CSV log.
func (s *Surfaces) Close() error {
	for _, ad := range s.ads {
		ad.Shutdown()
	}
	s.ads = nil
	if s.csv == nil {
		return nil
	}
	err := s.csv.Close()
	s.csv = nil
	return err
}

func instanceName(tool string) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return tool
	}
	return tool + " on " + host
}

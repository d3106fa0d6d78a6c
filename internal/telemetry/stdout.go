package telemetry

import (
	"github.com/rjboer/gofhss/internal/logging"
)

// Reporter captures telemetry events.
type Reporter interface {
	Report(sample Sample)
}

// StdoutReporter logs every measured frame.
type StdoutReporter struct {
	logger logging.Logger
}

// NewStdoutReporter builds a stdout reporter with the provided logger.
func NewStdoutReporter(logger logging.Logger) StdoutReporter {
	if logger == nil {
		logger = logging.Default()
	}
	return StdoutReporter{logger: logger}
}

func (r StdoutReporter) Report(sample Sample) {
	fields := []logging.Field{
		{Key: "subsystem", Value: "telemetry"},
		{Key: "frame", Value: sample.Frame},
		{Key: "hop", Value: sample.Hop},
		{Key: "errors", Value: sample.Errors},
		{Key: "ser", Value: sample.SER},
	}
	if sample.RecentSER != 0 {
		fields = append(fields, logging.Field{Key: "recent_ser", Value: sample.RecentSER})
	}
	if sample.Peak != 0 {
		fields = append(fields, logging.Field{Key: "peak", Value: sample.Peak})
	}
	if sample.State != "" {
		fields = append(fields, logging.Field{Key: "link_state", Value: sample.State})
	}
	r.logger.Debug("frame measured", fields...)
}

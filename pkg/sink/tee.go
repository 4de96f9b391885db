package sink

import (
	"strings"

	"github.com/core-tools/hsu-launchpad/pkg/domain"
	"github.com/core-tools/hsu-launchpad/pkg/logging"
)

type teeSink []Sink

// Tee forwards every notification to each sink in order
func Tee(sinks ...Sink) Sink {
	var active teeSink
	for _, s := range sinks {
		if s != nil {
			active = append(active, s)
		}
	}
	return active
}

func (t teeSink) Output(systemID string, data string, class domain.Classification) {
	for _, s := range t {
		s.Output(systemID, data, class)
	}
}

func (t teeSink) Stopped(systemID string) {
	for _, s := range t {
		s.Stopped(systemID)
	}
}

func (t teeSink) Deployed(systemID string, success bool) {
	for _, s := range t {
		s.Deployed(systemID, success)
	}
}

type logSink struct {
	logger logging.Logger
}

// NewLogSink mirrors child output at debug level and lifecycle at info level
func NewLogSink(logger logging.Logger) Sink {
	return &logSink{logger: logger}
}

func (s *logSink) Output(systemID string, data string, class domain.Classification) {
	if class == domain.ClassInfo || class == domain.ClassError {
		// narration is logged by the supervisor itself
		return
	}
	s.logger.Debugf("[%s] %s: %s", systemID, class, strings.TrimRight(data, "\r\n"))
}

func (s *logSink) Stopped(systemID string) {
	s.logger.Infof("[%s] stopped", systemID)
}

func (s *logSink) Deployed(systemID string, success bool) {
	s.logger.Infof("[%s] deployed, success: %t", systemID, success)
}

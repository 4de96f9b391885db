package sink

import (
	"github.com/core-tools/hsu-launchpad/pkg/domain"
)

// Sink receives supervisor output and lifecycle notifications
type Sink interface {
	Output(systemID string, data string, class domain.Classification)
	Stopped(systemID string)
	Deployed(systemID string, success bool)
}

type nopSink struct{}

// Nop discards every notification
func Nop() Sink {
	return nopSink{}
}

func (nopSink) Output(string, string, domain.Classification) {}
func (nopSink) Stopped(string)                              {}
func (nopSink) Deployed(string, bool)                       {}

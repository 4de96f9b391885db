package sink

import (
	"sync"

	"github.com/core-tools/hsu-launchpad/pkg/domain"
)

const (
	RenderRaw  = "raw"
	RenderHTML = "html"
)

// markupSink renders output chunks as HTML before passing them on. Each
// system keeps its own converter so colors survive chunk boundaries.
type markupSink struct {
	next Sink

	mu         sync.Mutex
	converters map[string]*ANSIConverter
}

// NewMarkupSink wraps next with the ANSI to HTML transform
func NewMarkupSink(next Sink) Sink {
	return &markupSink{
		next:       next,
		converters: make(map[string]*ANSIConverter),
	}
}

// WithRender applies the configured render mode to next
func WithRender(mode string, next Sink) Sink {
	if mode == RenderHTML {
		return NewMarkupSink(next)
	}
	return next
}

func (s *markupSink) Output(systemID string, data string, class domain.Classification) {
	s.mu.Lock()
	converter, ok := s.converters[systemID]
	if !ok {
		converter = NewANSIConverter()
		s.converters[systemID] = converter
	}
	rendered := converter.Convert(data)
	s.mu.Unlock()

	if rendered != "" {
		s.next.Output(systemID, rendered, class)
	}
}

func (s *markupSink) Stopped(systemID string) {
	s.reset(systemID)
	s.next.Stopped(systemID)
}

func (s *markupSink) Deployed(systemID string, success bool) {
	s.reset(systemID)
	s.next.Deployed(systemID, success)
}

func (s *markupSink) reset(systemID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.converters, systemID)
}

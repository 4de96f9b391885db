package sink

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/core-tools/hsu-launchpad/pkg/domain"
	"github.com/core-tools/hsu-launchpad/pkg/errors"
	"github.com/core-tools/hsu-launchpad/pkg/logging"
)

// FileSink appends the output of each system to <dir>/<system>.log as JSON
// lines. Files are opened on first output and kept until Close.
type FileSink struct {
	dir    string
	logger logging.Logger

	mu      sync.Mutex
	writers map[string]*systemLog
	closed  bool
}

type systemLog struct {
	file   *os.File
	logger *zap.Logger
}

func NewFileSink(dir string, logger logging.Logger) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.NewIOError("failed to create output log directory", err).WithContext("directory", dir)
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &FileSink{
		dir:     dir,
		logger:  logger,
		writers: make(map[string]*systemLog),
	}, nil
}

// Path returns the log file of a system
func (s *FileSink) Path(systemID string) string {
	name := strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(systemID)
	return filepath.Join(s.dir, name+".log")
}

func (s *FileSink) Output(systemID string, data string, class domain.Classification) {
	w := s.writer(systemID)
	if w == nil {
		return
	}
	w.logger.Info(strings.TrimRight(data, "\r\n"), zap.String("class", string(class)))
}

func (s *FileSink) Stopped(systemID string) {
	if w := s.writer(systemID); w != nil {
		w.logger.Info("stopped", zap.String("class", "lifecycle"))
		w.logger.Sync()
	}
}

func (s *FileSink) Deployed(systemID string, success bool) {
	if w := s.writer(systemID); w != nil {
		w.logger.Info("deployed", zap.String("class", "lifecycle"), zap.Bool("success", success))
		w.logger.Sync()
	}
}

func (s *FileSink) writer(systemID string) *systemLog {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	if w, ok := s.writers[systemID]; ok {
		return w
	}

	path := s.Path(systemID)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		s.logger.Warnf("Failed to open output log, system: %s, path: %s, error: %v", systemID, path, err)
		return nil
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(file), zapcore.DebugLevel)

	w := &systemLog{
		file:   file,
		logger: zap.New(core).With(zap.String("system_id", systemID)),
	}
	s.writers[systemID] = w
	s.logger.Debugf("Opened output log, system: %s, path: %s", systemID, path)
	return w
}

// Close flushes and closes every open log file
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	collection := errors.NewErrorCollection()
	for id, w := range s.writers {
		w.logger.Sync()
		if err := w.file.Close(); err != nil {
			collection.Add(errors.NewIOError("failed to close output log", err).WithContext("system_id", id))
		}
		delete(s.writers, id)
	}
	return collection.ToError()
}

package supervisor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/core-tools/hsu-launchpad/pkg/domain"
	"github.com/core-tools/hsu-launchpad/pkg/errors"
	"github.com/core-tools/hsu-launchpad/pkg/logging"
	"github.com/core-tools/hsu-launchpad/pkg/process"
	"github.com/core-tools/hsu-launchpad/pkg/processstate"
	"github.com/core-tools/hsu-launchpad/pkg/sink"
)

const (
	DefaultGracePeriod        = 3 * time.Second
	DefaultStartAllDelay      = 300 * time.Millisecond
	DefaultPortKillTimeout    = 10 * time.Second
	DefaultOutputDrainTimeout = 2 * time.Second
	DefaultDebugEnvVar        = "NODE_OPTIONS"
	DefaultDebugFlag          = "--inspect"
)

// Resolver looks up system definitions
type Resolver interface {
	ResolveSystem(ctx context.Context, applicationID, systemID string) (domain.SystemDescriptor, error)
	ListSystems(ctx context.Context, applicationID string) ([]domain.SystemDescriptor, error)
}

// Recorder keeps a history of spawned processes
type Recorder interface {
	RecordStart(ctx context.Context, run domain.RunRecord) error
	RecordExit(ctx context.Context, runID string, endedAt time.Time, exitCode *int, signal string, outcome domain.RunOutcome) error
}

type Options struct {
	GracePeriod        time.Duration
	StartAllDelay      time.Duration
	PortKillTimeout    time.Duration
	OutputDrainTimeout time.Duration
	Shell              string
	DebugEnvVar        string
	DebugFlag          string
}

type Dependencies struct {
	Resolver   Resolver
	Sink       sink.Sink
	Terminator process.Terminator
	PortKiller process.PortKiller
	// Recorder is optional
	Recorder Recorder
	Logger   logging.Logger
}

// Supervisor launches start and deploy commands, relays their output and
// terminates them. Only start processes are tracked, at most one per system.
type Supervisor struct {
	options    Options
	resolver   Resolver
	sink       sink.Sink
	terminator process.Terminator
	portKiller process.PortKiller
	recorder   Recorder
	logger     logging.Logger
	now        func() time.Time

	mu        sync.Mutex
	processes map[string]*managedProcess
	// live holds every launched instance until its exit is handled,
	// including deploys and replaced or discarded start processes
	live      map[*managedProcess]struct{}
	running   sync.WaitGroup
}

func New(options Options, deps Dependencies) (*Supervisor, error) {
	if deps.Resolver == nil {
		return nil, errors.NewValidationError("resolver is required", nil)
	}
	if deps.Sink == nil {
		return nil, errors.NewValidationError("sink is required", nil)
	}
	if deps.Terminator == nil {
		deps.Terminator = process.NewTerminator()
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNopLogger()
	}
	if deps.PortKiller == nil {
		deps.PortKiller = process.NewNativePortKiller(deps.Logger)
	}
	setOptionDefaults(&options)

	return &Supervisor{
		options:    options,
		resolver:   deps.Resolver,
		sink:       deps.Sink,
		terminator: deps.Terminator,
		portKiller: deps.PortKiller,
		recorder:   deps.Recorder,
		logger:     deps.Logger,
		now:        time.Now,
		processes:  make(map[string]*managedProcess),
		live:       make(map[*managedProcess]struct{}),
	}, nil
}

func setOptionDefaults(options *Options) {
	if options.GracePeriod <= 0 {
		options.GracePeriod = DefaultGracePeriod
	}
	if options.StartAllDelay < 0 {
		options.StartAllDelay = 0
	}
	if options.PortKillTimeout <= 0 {
		options.PortKillTimeout = DefaultPortKillTimeout
	}
	if options.OutputDrainTimeout <= 0 {
		options.OutputDrainTimeout = DefaultOutputDrainTimeout
	}
	if options.DebugEnvVar == "" {
		options.DebugEnvVar = DefaultDebugEnvVar
	}
	if options.DebugFlag == "" {
		options.DebugFlag = DefaultDebugFlag
	}
}

// Status lists tracked processes ordered by system id
func (s *Supervisor) Status() []domain.ProcessInfo {
	tracked := s.snapshot()
	infos := make([]domain.ProcessInfo, 0, len(tracked))
	for _, mp := range tracked {
		running, err := processstate.IsProcessRunning(mp.pid)
		if err != nil {
			s.logger.Debugf("Liveness probe failed, system: %s, PID: %d, error: %v", mp.systemID, mp.pid, err)
		}
		info := domain.ProcessInfo{
			SystemID:      mp.systemID,
			ApplicationID: mp.applicationID,
			PID:           mp.pid,
			Kind:          mp.kind,
			StartedAt:     mp.startedAt,
			Running:       running && !mp.exited(),
		}
		if info.Running {
			if usage, err := process.SampleUsage(context.Background(), mp.pid); err == nil {
				info.Usage = &usage
			}
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].SystemID < infos[j].SystemID })
	return infos
}

// IsTracked reports whether a start process is tracked for systemID
func (s *Supervisor) IsTracked(systemID string) bool {
	return s.lookup(systemID) != nil
}

// Tracking table. Every access goes through these helpers.

// track stores mp and returns the entry it replaced, if any
func (s *Supervisor) track(mp *managedProcess) *managedProcess {
	s.mu.Lock()
	defer s.mu.Unlock()
	previous := s.processes[mp.systemID]
	s.processes[mp.systemID] = mp
	return previous
}

func (s *Supervisor) lookup(systemID string) *managedProcess {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processes[systemID]
}

func (s *Supervisor) evict(systemID string) *managedProcess {
	s.mu.Lock()
	defer s.mu.Unlock()
	mp := s.processes[systemID]
	delete(s.processes, systemID)
	return mp
}

// removeIfCurrent removes the entry only when it still holds mp. An exit
// of a replaced process must not evict its successor.
func (s *Supervisor) removeIfCurrent(mp *managedProcess) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.processes[mp.systemID]
	if !ok || current != mp || current.pid != mp.pid {
		return false
	}
	delete(s.processes, mp.systemID)
	return true
}

func (s *Supervisor) evictAll() []*managedProcess {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := make([]*managedProcess, 0, len(s.processes))
	for id, mp := range s.processes {
		all = append(all, mp)
		delete(s.processes, id)
	}
	return all
}

func (s *Supervisor) addLive(mp *managedProcess) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live[mp] = struct{}{}
	s.running.Add(1)
}

func (s *Supervisor) removeLive(mp *managedProcess) {
	s.mu.Lock()
	delete(s.live, mp)
	s.mu.Unlock()
	s.running.Done()
}

func (s *Supervisor) liveSnapshot() []*managedProcess {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := make([]*managedProcess, 0, len(s.live))
	for mp := range s.live {
		all = append(all, mp)
	}
	return all
}

func (s *Supervisor) snapshot() []*managedProcess {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := make([]*managedProcess, 0, len(s.processes))
	for _, mp := range s.processes {
		all = append(all, mp)
	}
	return all
}

// Sink helpers. Narration is mirrored to the log.

func (s *Supervisor) narrate(systemID string, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	s.logger.Infof("[%s] %s", systemID, msg)
	s.sink.Output(systemID, msg+"\n", domain.ClassInfo)
}

func (s *Supervisor) reportError(systemID string, err error, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	s.logger.Errorf("[%s] %s: %v", systemID, msg, err)
	s.sink.Output(systemID, msg+"\n", domain.ClassError)
}

// terminal emits the single notification that closes a start or deploy request
func (s *Supervisor) terminal(systemID string, kind domain.CommandKind, success bool) {
	if kind == domain.CommandKindDeploy {
		s.sink.Deployed(systemID, success)
		return
	}
	s.sink.Stopped(systemID)
}

package supervisor

import (
	"context"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/core-tools/hsu-launchpad/pkg/domain"
	"github.com/core-tools/hsu-launchpad/pkg/errors"
	"github.com/core-tools/hsu-launchpad/pkg/process"
)

const relayBufferSize = 32 * 1024

// Start launches the start command of a system, replacing a tracked one
func (s *Supervisor) Start(ctx context.Context, applicationID, systemID string) error {
	return s.launch(ctx, applicationID, systemID, domain.CommandKindStart)
}

// Deploy runs the deploy command of a system once; it is never tracked
func (s *Supervisor) Deploy(ctx context.Context, applicationID, systemID string) error {
	return s.launch(ctx, applicationID, systemID, domain.CommandKindDeploy)
}

// StartAll starts every system of an application one after another. A
// failing system does not prevent the next one from starting.
func (s *Supervisor) StartAll(ctx context.Context, applicationID string) error {
	systems, err := s.resolver.ListSystems(ctx, applicationID)
	if err != nil {
		s.logger.Errorf("Failed to list systems, application: %s, error: %v", applicationID, err)
		return err
	}

	s.logger.Infof("Starting all systems, application: %s, count: %d", applicationID, len(systems))

	collection := errors.NewErrorCollection()
	for i, descriptor := range systems {
		if i > 0 && s.options.StartAllDelay > 0 {
			select {
			case <-ctx.Done():
				collection.Add(errors.NewCancelledError("start all cancelled", ctx.Err()).WithContext("application_id", applicationID))
				return collection.ToError()
			case <-time.After(s.options.StartAllDelay):
			}
		}
		collection.Add(s.launchDescriptor(descriptor, domain.CommandKindStart))
	}
	return collection.ToError()
}

func (s *Supervisor) launch(ctx context.Context, applicationID, systemID string, kind domain.CommandKind) error {
	descriptor, err := s.resolver.ResolveSystem(ctx, applicationID, systemID)
	if err != nil {
		s.reportError(systemID, err, "--- Error: system %s not found ---", systemID)
		s.terminal(systemID, kind, false)
		return err
	}
	return s.launchDescriptor(descriptor, kind)
}

func (s *Supervisor) launchDescriptor(descriptor domain.SystemDescriptor, kind domain.CommandKind) error {
	systemID := descriptor.ID
	command := descriptor.Command(kind)

	config := process.LaunchConfig{
		Command:   command,
		Directory: descriptor.Directory,
		Shell:     s.options.Shell,
	}
	if err := process.ValidateLaunchConfig(config); err != nil {
		switch {
		case strings.TrimSpace(command) == "":
			s.reportError(systemID, err, "--- Error: no '%s' command configured for %s ---", kind, descriptor.Name)
		case descriptor.Directory == "":
			s.reportError(systemID, err, "--- Error: no directory configured for %s ---", descriptor.Name)
		default:
			s.reportError(systemID, err, "--- Error: directory '%s' does not exist ---", descriptor.Directory)
		}
		s.terminal(systemID, kind, false)
		return err
	}

	portNote := ""
	debug := kind == domain.CommandKindStart && descriptor.DebugMode
	if kind == domain.CommandKindStart {
		if port, ok := descriptor.Port.Number(); ok {
			config.Environment = map[string]string{"PORT": strconv.Itoa(port)}
			portNote = " (PORT=" + strconv.Itoa(port) + ")"
		}
		if debug {
			config.Append = map[string]string{s.options.DebugEnvVar: s.options.DebugFlag}
		}

		if previous := s.evict(systemID); previous != nil {
			s.narrate(systemID, "--- Stopping previous 'start' process (PID %d) ---", previous.pid)
			s.terminate(previous)
		}
	}

	s.narrate(systemID, "--- Executing [%s]: %s in %s%s ---", kind, command, descriptor.Directory, portNote)

	launched, err := process.Launch(config, s.logger)
	if err != nil {
		s.reportError(systemID, err, "--- Error: failed to start [%s]: %v ---", kind, err)
		s.terminal(systemID, kind, false)
		return err
	}

	mp := &managedProcess{
		systemID:      systemID,
		applicationID: descriptor.ApplicationID,
		runID:         uuid.NewString(),
		kind:          kind,
		command:       command,
		pid:           launched.PID,
		process:       launched.Cmd.Process,
		debug:         debug,
		startedAt:     s.now(),
		done:          make(chan struct{}),
	}
	if kind == domain.CommandKindStart {
		if replaced := s.track(mp); replaced != nil {
			// a concurrent start won the race for this system
			s.narrate(systemID, "--- Stopping previous 'start' process (PID %d) ---", replaced.pid)
			s.terminate(replaced)
		}
	}

	s.recordStart(mp, descriptor.Directory)
	s.logger.Infof("Launched system, id: %s, kind: %s, PID: %d", systemID, kind, mp.pid)

	s.addLive(mp)
	go s.supervise(mp, launched)
	return nil
}

// supervise relays output and handles the exit of one process instance
func (s *Supervisor) supervise(mp *managedProcess, launched *process.Launched) {
	defer s.removeLive(mp)

	var relays sync.WaitGroup
	relays.Add(2)
	go s.relay(mp, launched.Stdout, domain.ClassStdout, &relays)
	go s.relay(mp, launched.Stderr, domain.ClassStderr, &relays)

	state, waitErr := mp.process.Wait()

	drained := make(chan struct{})
	go func() {
		relays.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(s.options.OutputDrainTimeout):
		// descendants outside the group may hold the pipes open
		launched.Stdout.Close()
		launched.Stderr.Close()
		<-drained
	}

	if waitErr != nil {
		s.handleError(mp, waitErr)
		return
	}
	s.handleClose(mp, process.ExitStatusFromState(state))
}

func (s *Supervisor) relay(mp *managedProcess, r io.ReadCloser, class domain.Classification, wg *sync.WaitGroup) {
	defer wg.Done()
	defer r.Close()

	if class == domain.ClassStderr && mp.debug {
		// debuggers report status on stderr
		class = domain.ClassStdout
	}

	buf := make([]byte, relayBufferSize)
	carry := 0
	for {
		n, err := r.Read(buf[carry:])
		n += carry
		carry = 0
		if n > 0 {
			emit := n
			if err == nil {
				emit = completeUTF8(buf[:n])
			}
			if emit > 0 {
				s.sink.Output(mp.systemID, string(buf[:emit]), class)
			}
			carry = copy(buf, buf[emit:n])
		}
		if err != nil {
			return
		}
	}
}

// completeUTF8 returns the length of b without a trailing partial rune
func completeUTF8(b []byte) int {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			if utf8.FullRune(b[i:]) {
				return len(b)
			}
			return i
		}
	}
	return len(b)
}

func (s *Supervisor) handleClose(mp *managedProcess, status process.ExitStatus) {
	close(mp.done)
	mp.disarm()

	if status.Signal != "" {
		s.narrate(mp.systemID, "--- Process [%s] exited with code %d (signal %s) ---", mp.kind, status.Code, status.Signal)
	} else {
		s.narrate(mp.systemID, "--- Process [%s] exited with code %d ---", mp.kind, status.Code)
	}

	outcome := domain.RunOutcomeExited
	if status.Signal != "" || mp.wasForced() {
		outcome = domain.RunOutcomeKilled
	}
	code := status.Code
	s.recordExit(mp, &code, status.Signal, outcome)
	if err := status.Err(); err != nil {
		s.logger.Infof("Process ended abnormally, system: %s, kind: %s, PID: %d, error: %v", mp.systemID, mp.kind, mp.pid, err)
	}

	s.finish(mp, status.Success())
}

func (s *Supervisor) handleError(mp *managedProcess, err error) {
	close(mp.done)
	mp.disarm()

	s.reportError(mp.systemID, err, "--- Error: process [%s] failed: %v ---", mp.kind, err)
	s.recordExit(mp, nil, "", domain.RunOutcomeFailed)

	s.finish(mp, false)
}

func (s *Supervisor) finish(mp *managedProcess, success bool) {
	if mp.kind == domain.CommandKindDeploy {
		s.sink.Deployed(mp.systemID, success)
		return
	}
	if s.removeIfCurrent(mp) {
		s.sink.Stopped(mp.systemID)
		return
	}
	s.logger.Debugf("Exit of replaced or evicted process ignored, system: %s, PID: %d", mp.systemID, mp.pid)
}

func (s *Supervisor) recordStart(mp *managedProcess, directory string) {
	if s.recorder == nil {
		return
	}
	err := s.recorder.RecordStart(context.Background(), domain.RunRecord{
		RunID:         mp.runID,
		SystemID:      mp.systemID,
		ApplicationID: mp.applicationID,
		Kind:          mp.kind,
		PID:           mp.pid,
		Command:       mp.command,
		Directory:     directory,
		StartedAt:     mp.startedAt,
		Outcome:       domain.RunOutcomeRunning,
	})
	if err != nil {
		s.logger.Warnf("Failed to record run start, system: %s, error: %v", mp.systemID, err)
	}
}

func (s *Supervisor) recordExit(mp *managedProcess, code *int, signal string, outcome domain.RunOutcome) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.RecordExit(context.Background(), mp.runID, s.now(), code, signal, outcome); err != nil {
		s.logger.Warnf("Failed to record run exit, system: %s, error: %v", mp.systemID, err)
	}
}

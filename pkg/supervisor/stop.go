package supervisor

import (
	"context"

	"github.com/core-tools/hsu-launchpad/pkg/domain"
	"github.com/core-tools/hsu-launchpad/pkg/errors"
	"github.com/core-tools/hsu-launchpad/pkg/process"
)

// Stop asks the tracked process of a system to exit. The entry stays in
// the table until the exit is observed; if that takes longer than the grace
// period the subtree is killed. Stopping an untracked system only emits
// stopped.
func (s *Supervisor) Stop(ctx context.Context, systemID string) error {
	mp := s.lookup(systemID)
	if mp == nil {
		s.narrate(systemID, "--- System %s is not running ---", systemID)
		s.sink.Stopped(systemID)
		return nil
	}

	s.narrate(systemID, "--- Sending stop signal (SIGTERM) to PID %d ---", mp.pid)
	s.terminate(mp)
	return nil
}

// terminate signals the subtree of mp and arms the single escalation
func (s *Supervisor) terminate(mp *managedProcess) {
	if err := s.terminator.Terminate(mp.pid); err != nil {
		if process.IsNoSuchProcess(err) {
			s.logger.Debugf("Process already gone, system: %s, PID: %d", mp.systemID, mp.pid)
		} else {
			terr := errors.NewTerminationError("failed to send stop signal", err).WithContext("pid", mp.pid)
			s.reportError(mp.systemID, terr, "--- Error: failed to signal PID %d: %v ---", mp.pid, err)
		}
	}

	mp.armEscalation(s.options.GracePeriod, func() {
		s.escalate(mp)
	})
}

// escalate kills the subtree of mp once, if mp has not exited by now
func (s *Supervisor) escalate(mp *managedProcess) {
	if mp.exited() {
		return
	}
	mp.escalation.Do(func() {
		s.narrate(mp.systemID, "--- PID %d did not exit within %s, killing ---", mp.pid, s.options.GracePeriod)
		s.kill(mp)
	})
}

func (s *Supervisor) kill(mp *managedProcess) bool {
	err := s.terminator.Kill(mp.pid)
	if err == nil {
		return true
	}
	if process.IsBenignKillError(err) {
		s.logger.Debugf("Nothing to kill, system: %s, PID: %d, error: %v", mp.systemID, mp.pid, err)
		return false
	}
	terr := errors.NewTerminationError("failed to kill process", err).WithContext("pid", mp.pid)
	s.reportError(mp.systemID, terr, "--- Error: failed to kill PID %d: %v ---", mp.pid, err)
	return false
}

// ForceStop evicts and kills the tracked process without waiting for it,
// then kills whatever owns the system's port. stopped is always emitted once.
func (s *Supervisor) ForceStop(ctx context.Context, applicationID, systemID string) domain.ForceStopSummary {
	summary := domain.ForceStopSummary{}

	if mp := s.evict(systemID); mp != nil {
		pid := mp.pid
		summary.OriginalPID = &pid
		mp.markForced()
		mp.disarm()
		s.narrate(systemID, "--- Force-killing PID %d ---", pid)
		summary.KilledOriginal = s.kill(mp)
	}

	descriptor, err := s.resolver.ResolveSystem(ctx, applicationID, systemID)
	if err != nil {
		s.logger.Warnf("Port lookup skipped, system %s could not be resolved: %v", systemID, err)
	} else if port, ok := descriptor.Port.Number(); ok {
		summary.PortAttempted = &port
		summary.KilledByPort = s.killByPort(ctx, systemID, port)
	}

	s.sink.Stopped(systemID)
	s.logger.Infof("Force stop done, system: %s, summary: killedOriginal=%t killedByPort=%t", systemID, summary.KilledOriginal, summary.KilledByPort)
	return summary
}

func (s *Supervisor) killByPort(ctx context.Context, systemID string, port int) bool {
	s.narrate(systemID, "--- Killing processes listening on port %d ---", port)

	ctx, cancel := context.WithTimeout(ctx, s.options.PortKillTimeout)
	defer cancel()

	result, err := s.portKiller.KillByPort(ctx, port)
	switch {
	case err == nil:
	case errors.IsLookupMissError(err):
		s.narrate(systemID, "--- No process found on port %d ---", port)
	default:
		s.reportError(systemID, err, "--- Error: failed to kill processes on port %d: %v ---", port, err)
	}
	if len(result.Killed) > 0 {
		s.narrate(systemID, "--- Killed PIDs %v on port %d ---", result.Killed, port)
	}
	return len(result.Killed) > 0
}

// Discard evicts the tracked process of a system and terminates it without
// any notification. Used when the system definition goes away.
func (s *Supervisor) Discard(systemID string) bool {
	mp := s.evict(systemID)
	if mp == nil {
		return false
	}
	s.logger.Infof("Discarding process, system: %s, PID: %d", systemID, mp.pid)
	s.terminate(mp)
	return true
}

// Shutdown terminates every launched process, tracked or not, and waits
// until their exits have been handled. Escalation applies as for Stop.
// Evicted start processes emit no stopped notification.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	tracked := s.evictAll()
	live := s.liveSnapshot()
	if len(live) == 0 {
		return nil
	}
	s.logger.Infof("Shutting down, tracked: %d, live: %d", len(tracked), len(live))

	for _, mp := range live {
		if !mp.exited() {
			s.terminate(mp)
		}
	}

	finished := make(chan struct{})
	go func() {
		s.running.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
	}

	collection := errors.NewErrorCollection()
	for _, mp := range s.liveSnapshot() {
		collection.Add(errors.NewCancelledError("process did not exit before shutdown deadline", ctx.Err()).
			WithContext("system_id", mp.systemID).
			WithContext("pid", mp.pid))
	}
	if !collection.HasErrors() {
		return nil
	}
	return collection.ToError()
}

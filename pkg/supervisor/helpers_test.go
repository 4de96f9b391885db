package supervisor

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/core-tools/hsu-launchpad/pkg/domain"
	"github.com/core-tools/hsu-launchpad/pkg/errors"
	"github.com/core-tools/hsu-launchpad/pkg/process"
)

type fakeResolver struct {
	mu      sync.Mutex
	systems []domain.SystemDescriptor
}

func newFakeResolver(systems ...domain.SystemDescriptor) *fakeResolver {
	return &fakeResolver{systems: systems}
}

func (r *fakeResolver) ResolveSystem(ctx context.Context, applicationID, systemID string) (domain.SystemDescriptor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.systems {
		if d.ApplicationID == applicationID && d.ID == systemID {
			return d, nil
		}
	}
	return domain.SystemDescriptor{}, errors.NewNotFoundError("system not found", nil)
}

func (r *fakeResolver) ListSystems(ctx context.Context, applicationID string) ([]domain.SystemDescriptor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.SystemDescriptor
	for _, d := range r.systems {
		if d.ApplicationID == applicationID {
			result = append(result, d)
		}
	}
	if result == nil {
		return nil, errors.NewNotFoundError("application not found", nil)
	}
	return result, nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recordingSink) Output(systemID string, data string, class domain.Classification) {
	r.add(domain.Event{Type: domain.EventOutput, SystemID: systemID, Data: data, Classification: class})
}

func (r *recordingSink) Stopped(systemID string) {
	r.add(domain.Event{Type: domain.EventStopped, SystemID: systemID})
}

func (r *recordingSink) Deployed(systemID string, success bool) {
	r.add(domain.Event{Type: domain.EventDeployed, SystemID: systemID, Success: success})
}

func (r *recordingSink) add(ev domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingSink) count(systemID string, eventType domain.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.SystemID == systemID && ev.Type == eventType {
			n++
		}
	}
	return n
}

func (r *recordingSink) deployed(systemID string) []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []bool
	for _, ev := range r.events {
		if ev.SystemID == systemID && ev.Type == domain.EventDeployed {
			result = append(result, ev.Success)
		}
	}
	return result
}

// output joins every chunk of the given class for a system
func (r *recordingSink) output(systemID string, class domain.Classification) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var sb strings.Builder
	for _, ev := range r.events {
		if ev.SystemID == systemID && ev.Type == domain.EventOutput && ev.Classification == class {
			sb.WriteString(ev.Data)
		}
	}
	return sb.String()
}

func (r *recordingSink) contains(systemID string, class domain.Classification, substr string) bool {
	return strings.Contains(r.output(systemID, class), substr)
}

// countingTerminator wraps a real terminator and records every call
type countingTerminator struct {
	next process.Terminator

	mu         sync.Mutex
	terminated []int
	killed     []int
}

func (c *countingTerminator) Name() string { return "counting" }

func (c *countingTerminator) Terminate(pid int) error {
	c.mu.Lock()
	c.terminated = append(c.terminated, pid)
	c.mu.Unlock()
	return c.next.Terminate(pid)
}

func (c *countingTerminator) Kill(pid int) error {
	c.mu.Lock()
	c.killed = append(c.killed, pid)
	c.mu.Unlock()
	return c.next.Kill(pid)
}

func (c *countingTerminator) calls() (terminated, killed []int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.terminated...), append([]int(nil), c.killed...)
}

type fakePortKiller struct {
	mu     sync.Mutex
	ports  []int
	result process.PortKillResult
	err    error
}

func (f *fakePortKiller) KillByPort(ctx context.Context, port int) (process.PortKillResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ports = append(f.ports, port)
	return f.result, f.err
}

func (f *fakePortKiller) calls() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.ports...)
}

type recordedExit struct {
	runID   string
	code    *int
	signal  string
	outcome domain.RunOutcome
}

type fakeRecorder struct {
	mu     sync.Mutex
	starts []domain.RunRecord
	exits  []recordedExit
}

func (f *fakeRecorder) RecordStart(ctx context.Context, run domain.RunRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, run)
	return nil
}

func (f *fakeRecorder) RecordExit(ctx context.Context, runID string, endedAt time.Time, exitCode *int, signal string, outcome domain.RunOutcome) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exits = append(f.exits, recordedExit{runID, exitCode, signal, outcome})
	return nil
}

func (f *fakeRecorder) snapshot() ([]domain.RunRecord, []recordedExit) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.RunRecord(nil), f.starts...), append([]recordedExit(nil), f.exits...)
}

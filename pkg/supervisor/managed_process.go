package supervisor

import (
	"os"
	"sync"
	"time"

	"github.com/core-tools/hsu-launchpad/pkg/domain"
)

type managedProcess struct {
	systemID      string
	applicationID string
	runID         string
	kind          domain.CommandKind
	command       string
	pid           int
	process       *os.Process
	debug         bool
	startedAt     time.Time

	// closed once the exit of this instance has been observed
	done chan struct{}

	mu         sync.Mutex
	timer      *time.Timer
	escalation sync.Once
	forced     bool
}

func (mp *managedProcess) exited() bool {
	select {
	case <-mp.done:
		return true
	default:
		return false
	}
}

// armEscalation schedules fn after grace unless a timer is already armed
func (mp *managedProcess) armEscalation(grace time.Duration, fn func()) bool {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	if mp.timer != nil || mp.exited() {
		return false
	}
	mp.timer = time.AfterFunc(grace, fn)
	return true
}

func (mp *managedProcess) disarm() {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	if mp.timer != nil {
		mp.timer.Stop()
	}
}

func (mp *managedProcess) markForced() {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.forced = true
}

func (mp *managedProcess) wasForced() bool {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return mp.forced
}

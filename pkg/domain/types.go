package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type CommandKind string

const (
	CommandKindStart  CommandKind = "start"
	CommandKindDeploy CommandKind = "deploy"
)

// Classification tags a chunk of output relayed to the sink
type Classification string

const (
	ClassStdout Classification = "stdout"
	ClassStderr Classification = "stderr"
	ClassInfo   Classification = "info"
	ClassError  Classification = "error"
)

// Port is a TCP port as authored by the user; the registry accepts both
// JSON numbers and strings for it.
type Port string

func (p Port) Number() (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(string(p)))
	if err != nil || n <= 0 || n > 65535 {
		return 0, false
	}
	return n, true
}

func (p *Port) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*p = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = Port(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("port must be a number or string: %w", err)
	}
	*p = Port(n.String())
	return nil
}

// SystemDescriptor is the read-only view of a system used for one invocation
type SystemDescriptor struct {
	ID            string
	ApplicationID string
	Name          string
	Directory     string
	StartCommand  string
	DeployCommand string
	Port          Port
	DebugMode     bool
}

func (d SystemDescriptor) Command(kind CommandKind) string {
	if kind == CommandKindDeploy {
		return d.DeployCommand
	}
	return d.StartCommand
}

type Application struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Directory string   `json:"directory"`
	Systems   []System `json:"systems"`
}

type System struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Directory     string `json:"directory"`
	StartCommand  string `json:"startCommand"`
	DeployCommand string `json:"deployCommand,omitempty"`
	Port          Port   `json:"port,omitempty"`
	DebugMode     bool   `json:"debugMode,omitempty"`
}

func (s System) Descriptor(applicationID string) SystemDescriptor {
	return SystemDescriptor{
		ID:            s.ID,
		ApplicationID: applicationID,
		Name:          s.Name,
		Directory:     s.Directory,
		StartCommand:  s.StartCommand,
		DeployCommand: s.DeployCommand,
		Port:          s.Port,
		DebugMode:     s.DebugMode,
	}
}

// ForceStopSummary reports what each force-stop phase achieved
type ForceStopSummary struct {
	KilledOriginal bool `json:"killedOriginal"`
	KilledByPort   bool `json:"killedByPort"`
	PortAttempted  *int `json:"portAttempted"`
	OriginalPID    *int `json:"originalPid"`
}

// ProcessInfo describes a tracked start process
type ProcessInfo struct {
	SystemID      string      `json:"systemId"`
	ApplicationID string      `json:"applicationId"`
	PID           int         `json:"pid"`
	Kind          CommandKind `json:"kind"`
	StartedAt     time.Time   `json:"startedAt"`
	Running       bool        `json:"running"`
	// Usage is absent when the process tree could not be sampled
	Usage *ResourceUsage `json:"usage,omitempty"`
}

// ResourceUsage is summed over a process and its descendants
type ResourceUsage struct {
	MemoryRSS  uint64  `json:"memoryRss"`
	CPUPercent float64 `json:"cpuPercent"`
	Processes  int     `json:"processes"`
}

type RunOutcome string

const (
	RunOutcomeRunning RunOutcome = "running"
	RunOutcomeExited  RunOutcome = "exited"
	RunOutcomeFailed  RunOutcome = "failed"
	RunOutcomeKilled  RunOutcome = "killed"
)

// RunRecord is one spawned process as kept by the run history
type RunRecord struct {
	RunID         string      `json:"runId"`
	SystemID      string      `json:"systemId"`
	ApplicationID string      `json:"applicationId"`
	Kind          CommandKind `json:"kind"`
	PID           int         `json:"pid"`
	Command       string      `json:"command"`
	Directory     string      `json:"directory"`
	StartedAt     time.Time   `json:"startedAt"`
	EndedAt       *time.Time  `json:"endedAt,omitempty"`
	ExitCode      *int        `json:"exitCode,omitempty"`
	Signal        string      `json:"signal,omitempty"`
	Outcome       RunOutcome  `json:"outcome"`
}

type EventType string

const (
	EventOutput   EventType = "output"
	EventStopped  EventType = "stopped"
	EventDeployed EventType = "deployed"
)

// Event is a sink notification as delivered to subscribers
type Event struct {
	Type           EventType      `json:"type"`
	SystemID       string         `json:"systemId"`
	Data           string         `json:"data,omitempty"`
	Classification Classification `json:"classification,omitempty"`
	Success        bool           `json:"success,omitempty"`
	Time           time.Time      `json:"time"`
}

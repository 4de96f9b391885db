package launchpad

import (
	"context"
	"strings"
	"sync"

	"github.com/core-tools/hsu-launchpad/pkg/domain"
	"github.com/core-tools/hsu-launchpad/pkg/errors"
	"github.com/core-tools/hsu-launchpad/pkg/logging"
)

// Registry stores applications and systems
type Registry interface {
	Load(ctx context.Context) ([]domain.Application, error)
	AddApplication(ctx context.Context, name, directory string) (domain.Application, error)
	UpdateApplication(ctx context.Context, applicationID, name, directory string) (domain.Application, error)
	DeleteApplication(ctx context.Context, applicationID string) (domain.Application, error)
	AddSystem(ctx context.Context, applicationID string, system domain.System) (domain.System, error)
	UpdateSystem(ctx context.Context, applicationID string, system domain.System) (domain.System, error)
	DeleteSystem(ctx context.Context, applicationID, systemID string) error
}

// Runtime runs and stops system processes
type Runtime interface {
	Start(ctx context.Context, applicationID, systemID string) error
	Deploy(ctx context.Context, applicationID, systemID string) error
	StartAll(ctx context.Context, applicationID string) error
	Stop(ctx context.Context, systemID string) error
	ForceStop(ctx context.Context, applicationID, systemID string) domain.ForceStopSummary
	Status() []domain.ProcessInfo
	Discard(systemID string) bool
}

// RunHistory lists recorded runs
type RunHistory interface {
	ListRuns(ctx context.Context, systemID string, limit int) ([]domain.RunRecord, error)
}

// EventSource hands out event subscriptions
type EventSource interface {
	Subscribe() (<-chan domain.Event, func(), error)
}

// Handler implements domain.Contract on top of the registry and the supervisor
type Handler struct {
	registry Registry
	runtime  Runtime
	history  RunHistory
	events   EventSource
	logger   logging.Logger

	closeOnce sync.Once
	closing   chan struct{}
}

// NewHandler builds the contract implementation; history may be nil when
// run history is disabled.
func NewHandler(registry Registry, runtime Runtime, history RunHistory, events EventSource, logger logging.Logger) *Handler {
	return &Handler{
		registry: registry,
		runtime:  runtime,
		history:  history,
		events:   events,
		logger:   logger,
		closing:  make(chan struct{}),
	}
}

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return errors.NewValidationError(field+" is required", nil)
	}
	return nil
}

func requiredIDs(applicationID, systemID string) error {
	if err := required("application id", applicationID); err != nil {
		return err
	}
	return required("system id", systemID)
}

func (h *Handler) Start(ctx context.Context, applicationID, systemID string) error {
	if err := requiredIDs(applicationID, systemID); err != nil {
		return err
	}
	return h.runtime.Start(ctx, applicationID, systemID)
}

func (h *Handler) Stop(ctx context.Context, systemID string) error {
	if err := required("system id", systemID); err != nil {
		return err
	}
	return h.runtime.Stop(ctx, systemID)
}

func (h *Handler) ForceStop(ctx context.Context, applicationID, systemID string) (domain.ForceStopSummary, error) {
	if err := requiredIDs(applicationID, systemID); err != nil {
		return domain.ForceStopSummary{}, err
	}
	return h.runtime.ForceStop(ctx, applicationID, systemID), nil
}

func (h *Handler) Deploy(ctx context.Context, applicationID, systemID string) error {
	if err := requiredIDs(applicationID, systemID); err != nil {
		return err
	}
	return h.runtime.Deploy(ctx, applicationID, systemID)
}

func (h *Handler) StartAll(ctx context.Context, applicationID string) error {
	if err := required("application id", applicationID); err != nil {
		return err
	}
	return h.runtime.StartAll(ctx, applicationID)
}

func (h *Handler) Status(ctx context.Context) ([]domain.ProcessInfo, error) {
	return h.runtime.Status(), nil
}

func (h *Handler) History(ctx context.Context, systemID string, limit int) ([]domain.RunRecord, error) {
	if err := required("system id", systemID); err != nil {
		return nil, err
	}
	if h.history == nil {
		return nil, errors.NewValidationError("run history is disabled", nil)
	}
	return h.history.ListRuns(ctx, systemID, limit)
}

func (h *Handler) ListApplications(ctx context.Context) ([]domain.Application, error) {
	return h.registry.Load(ctx)
}

func (h *Handler) AddApplication(ctx context.Context, name, directory string) (domain.Application, error) {
	return h.registry.AddApplication(ctx, name, directory)
}

func (h *Handler) UpdateApplication(ctx context.Context, applicationID, name, directory string) (domain.Application, error) {
	if err := required("application id", applicationID); err != nil {
		return domain.Application{}, err
	}
	return h.registry.UpdateApplication(ctx, applicationID, name, directory)
}

// DeleteApplication removes the application and discards the processes of
// all its systems
func (h *Handler) DeleteApplication(ctx context.Context, applicationID string) error {
	if err := required("application id", applicationID); err != nil {
		return err
	}
	removed, err := h.registry.DeleteApplication(ctx, applicationID)
	if err != nil {
		return err
	}
	for _, system := range removed.Systems {
		if h.runtime.Discard(system.ID) {
			h.logger.Infof("Discarded process of deleted application, application: %s, system: %s", applicationID, system.ID)
		}
	}
	return nil
}

func (h *Handler) AddSystem(ctx context.Context, applicationID string, system domain.System) (domain.System, error) {
	if err := required("application id", applicationID); err != nil {
		return domain.System{}, err
	}
	return h.registry.AddSystem(ctx, applicationID, system)
}

func (h *Handler) UpdateSystem(ctx context.Context, applicationID string, system domain.System) (domain.System, error) {
	if err := requiredIDs(applicationID, system.ID); err != nil {
		return domain.System{}, err
	}
	return h.registry.UpdateSystem(ctx, applicationID, system)
}

// DeleteSystem removes the system and discards its tracked process
func (h *Handler) DeleteSystem(ctx context.Context, applicationID, systemID string) error {
	if err := requiredIDs(applicationID, systemID); err != nil {
		return err
	}
	if err := h.registry.DeleteSystem(ctx, applicationID, systemID); err != nil {
		return err
	}
	if h.runtime.Discard(systemID) {
		h.logger.Infof("Discarded process of deleted system, application: %s, system: %s", applicationID, systemID)
	}
	return nil
}

// Events delivers events to fn until ctx is done, fn fails or the handler
// is closed
func (h *Handler) Events(ctx context.Context, fn func(domain.Event) error) error {
	ch, cancel, err := h.events.Subscribe()
	if err != nil {
		return err
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-h.closing:
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			if err := fn(ev); err != nil {
				return err
			}
		}
	}
}

// Close ends every open event stream
func (h *Handler) Close() {
	h.closeOnce.Do(func() {
		close(h.closing)
	})
}

package domain

import (
	"context"
)

// Contract is the surface the launchpad daemon offers to its clients
type Contract interface {
	Start(ctx context.Context, applicationID, systemID string) error
	Stop(ctx context.Context, systemID string) error
	ForceStop(ctx context.Context, applicationID, systemID string) (ForceStopSummary, error)
	Deploy(ctx context.Context, applicationID, systemID string) error
	StartAll(ctx context.Context, applicationID string) error

	Status(ctx context.Context) ([]ProcessInfo, error)
	History(ctx context.Context, systemID string, limit int) ([]RunRecord, error)

	ListApplications(ctx context.Context) ([]Application, error)
	AddApplication(ctx context.Context, name, directory string) (Application, error)
	UpdateApplication(ctx context.Context, applicationID, name, directory string) (Application, error)
	DeleteApplication(ctx context.Context, applicationID string) error
	AddSystem(ctx context.Context, applicationID string, system System) (System, error)
	UpdateSystem(ctx context.Context, applicationID string, system System) (System, error)
	DeleteSystem(ctx context.Context, applicationID, systemID string) error

	// Events delivers sink events to fn until ctx is done or fn fails
	Events(ctx context.Context, fn func(Event) error) error
}

package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"

	"github.com/core-tools/hsu-launchpad/pkg/domain"
	"github.com/core-tools/hsu-launchpad/pkg/errors"
	"github.com/core-tools/hsu-launchpad/pkg/logging"
)

const DefaultFileName = "dev-launchpad-data.json"

// Store keeps applications and their systems in one JSON document. Every
// mutation rewrites the whole document.
type Store struct {
	path   string
	schema *gojsonschema.Schema
	logger logging.Logger

	mu sync.Mutex
}

func NewStore(path string, logger logging.Logger) (*Store, error) {
	if path == "" {
		return nil, errors.NewValidationError("registry path is required", nil)
	}
	schema, err := newDocumentSchema()
	if err != nil {
		return nil, errors.NewInternalError("failed to compile registry schema", err)
	}
	return &Store{
		path:   path,
		schema: schema,
		logger: logger,
	}, nil
}

func (s *Store) Path() string {
	return s.path
}

// Load reads the document. A missing file is created empty; unparsable
// content is moved aside and treated as empty.
func (s *Store) Load(ctx context.Context) ([]domain.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

// Save replaces the document with apps
func (s *Store) Save(ctx context.Context, apps []domain.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(ctx, apps)
}

func (s *Store) load(ctx context.Context) ([]domain.Application, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.NewCancelledError("registry load cancelled", err)
	}

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.logger.Infof("Registry file not found, creating: %s", s.path)
		if err := s.save(ctx, nil); err != nil {
			return nil, err
		}
		return []domain.Application{}, nil
	}
	if err != nil {
		return nil, errors.NewIOError("failed to read registry", err).WithContext("path", s.path)
	}

	if err := validateDocument(s.schema, data); err != nil {
		s.quarantine(err)
		return []domain.Application{}, nil
	}

	var apps []domain.Application
	if err := json.Unmarshal(data, &apps); err != nil {
		s.quarantine(err)
		return []domain.Application{}, nil
	}
	for i := range apps {
		if apps[i].Systems == nil {
			apps[i].Systems = []domain.System{}
		}
	}
	return apps, nil
}

// quarantine keeps an unreadable document around instead of overwriting it
func (s *Store) quarantine(cause error) {
	backup := fmt.Sprintf("%s.corrupt-%s", s.path, time.Now().Format("20060102-150405"))
	if err := os.Rename(s.path, backup); err != nil {
		s.logger.Errorf("Registry is unreadable and could not be moved aside, path: %s, error: %v", s.path, err)
		return
	}
	s.logger.Warnf("Registry is unreadable, moved to %s, starting empty: %v", backup, cause)
}

func (s *Store) save(ctx context.Context, apps []domain.Application) error {
	if err := ctx.Err(); err != nil {
		return errors.NewCancelledError("registry save cancelled", err)
	}
	if apps == nil {
		apps = []domain.Application{}
	}

	data, err := json.MarshalIndent(apps, "", "  ")
	if err != nil {
		return errors.NewInternalError("failed to encode registry", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return errors.NewIOError("failed to create registry directory", err).WithContext("path", s.path)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return errors.NewIOError("failed to create temporary registry file", err).WithContext("path", s.path)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.NewIOError("failed to write registry", err).WithContext("path", s.path)
	}
	if err := tmp.Close(); err != nil {
		return errors.NewIOError("failed to write registry", err).WithContext("path", s.path)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return errors.NewIOError("failed to replace registry", err).WithContext("path", s.path)
	}
	return nil
}

// update runs fn over the loaded document and saves the result
func (s *Store) update(ctx context.Context, fn func(apps []domain.Application) ([]domain.Application, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	apps, err := s.load(ctx)
	if err != nil {
		return err
	}
	apps, err = fn(apps)
	if err != nil {
		return err
	}
	return s.save(ctx, apps)
}

func findApplication(apps []domain.Application, applicationID string) (int, error) {
	for i := range apps {
		if apps[i].ID == applicationID {
			return i, nil
		}
	}
	return -1, errors.NewNotFoundError("application not found", nil).WithContext("application_id", applicationID)
}

func findSystem(app domain.Application, systemID string) (int, error) {
	for i := range app.Systems {
		if app.Systems[i].ID == systemID {
			return i, nil
		}
	}
	return -1, errors.NewNotFoundError("system not found", nil).
		WithContext("application_id", app.ID).
		WithContext("system_id", systemID)
}

func (s *Store) AddApplication(ctx context.Context, name, directory string) (domain.Application, error) {
	if strings.TrimSpace(name) == "" {
		return domain.Application{}, errors.NewValidationError("application name is required", nil)
	}

	app := domain.Application{
		ID:        uuid.NewString(),
		Name:      name,
		Directory: directory,
		Systems:   []domain.System{},
	}
	err := s.update(ctx, func(apps []domain.Application) ([]domain.Application, error) {
		return append(apps, app), nil
	})
	if err != nil {
		return domain.Application{}, err
	}
	s.logger.Infof("Application added, id: %s, name: %s", app.ID, app.Name)
	return app, nil
}

func (s *Store) UpdateApplication(ctx context.Context, applicationID, name, directory string) (domain.Application, error) {
	var updated domain.Application
	err := s.update(ctx, func(apps []domain.Application) ([]domain.Application, error) {
		i, err := findApplication(apps, applicationID)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(name) != "" {
			apps[i].Name = name
		}
		apps[i].Directory = directory
		updated = apps[i]
		return apps, nil
	})
	return updated, err
}

// DeleteApplication removes the application and returns it as it was
func (s *Store) DeleteApplication(ctx context.Context, applicationID string) (domain.Application, error) {
	var removed domain.Application
	err := s.update(ctx, func(apps []domain.Application) ([]domain.Application, error) {
		i, err := findApplication(apps, applicationID)
		if err != nil {
			return nil, err
		}
		removed = apps[i]
		return append(apps[:i], apps[i+1:]...), nil
	})
	if err == nil {
		s.logger.Infof("Application deleted, id: %s", applicationID)
	}
	return removed, err
}

func (s *Store) AddSystem(ctx context.Context, applicationID string, system domain.System) (domain.System, error) {
	if strings.TrimSpace(system.Name) == "" {
		return domain.System{}, errors.NewValidationError("system name is required", nil)
	}
	system.ID = uuid.NewString()

	err := s.update(ctx, func(apps []domain.Application) ([]domain.Application, error) {
		i, err := findApplication(apps, applicationID)
		if err != nil {
			return nil, err
		}
		apps[i].Systems = append(apps[i].Systems, system)
		return apps, nil
	})
	if err != nil {
		return domain.System{}, err
	}
	s.logger.Infof("System added, application: %s, id: %s, name: %s", applicationID, system.ID, system.Name)
	return system, nil
}

// UpdateSystem overwrites the fields of an existing system; the id is kept
func (s *Store) UpdateSystem(ctx context.Context, applicationID string, system domain.System) (domain.System, error) {
	var updated domain.System
	err := s.update(ctx, func(apps []domain.Application) ([]domain.Application, error) {
		i, err := findApplication(apps, applicationID)
		if err != nil {
			return nil, err
		}
		j, err := findSystem(apps[i], system.ID)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(system.Name) == "" {
			system.Name = apps[i].Systems[j].Name
		}
		apps[i].Systems[j] = system
		updated = system
		return apps, nil
	})
	return updated, err
}

func (s *Store) DeleteSystem(ctx context.Context, applicationID, systemID string) error {
	return s.update(ctx, func(apps []domain.Application) ([]domain.Application, error) {
		i, err := findApplication(apps, applicationID)
		if err != nil {
			return nil, err
		}
		j, err := findSystem(apps[i], systemID)
		if err != nil {
			return nil, err
		}
		apps[i].Systems = append(apps[i].Systems[:j], apps[i].Systems[j+1:]...)
		return apps, nil
	})
}

// ResolveSystem returns the descriptor of one system
func (s *Store) ResolveSystem(ctx context.Context, applicationID, systemID string) (domain.SystemDescriptor, error) {
	apps, err := s.Load(ctx)
	if err != nil {
		return domain.SystemDescriptor{}, err
	}
	i, err := findApplication(apps, applicationID)
	if err != nil {
		return domain.SystemDescriptor{}, err
	}
	j, err := findSystem(apps[i], systemID)
	if err != nil {
		return domain.SystemDescriptor{}, err
	}
	return apps[i].Systems[j].Descriptor(applicationID), nil
}

// ListSystems returns the descriptors of every system of an application
func (s *Store) ListSystems(ctx context.Context, applicationID string) ([]domain.SystemDescriptor, error) {
	apps, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	i, err := findApplication(apps, applicationID)
	if err != nil {
		return nil, err
	}
	descriptors := make([]domain.SystemDescriptor, 0, len(apps[i].Systems))
	for _, system := range apps[i].Systems {
		descriptors = append(descriptors, system.Descriptor(applicationID))
	}
	return descriptors, nil
}

// internal/tracking/tracking.go
package tracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	custom_errors "github-release-tracker/internal/errors"
	"github-release-tracker/internal/model"
)

// Provider fetches repository data from the hosting API.
type Provider interface {
	FetchMetadata(ctx context.Context, fullName string) (*model.RepositoryMetadata, error)
	FetchReleases(ctx context.Context, fullName string, page, perPage int) ([]model.Release, error)
}

// Store persists projects, their trackers and versions.
type Store interface {
	GetProject(ctx context.Context, id string) (*model.Project, error)
	GetProjectByFullName(ctx context.Context, fullName string) (*model.Project, error)
	CreateTrackedProject(ctx context.Context, meta *model.RepositoryMetadata, userID string) (*model.Project, error)
	AddTracker(ctx context.Context, userID, projectID string) error
	RemoveTracker(ctx context.Context, userID, projectID string) (bool, error)
	RefreshProject(ctx context.Context, projectID string, meta *model.RepositoryMetadata) (*model.Project, error)
	InsertVersions(ctx context.Context, projectID string, releases []model.Release) ([]model.Version, error)
	ListVersions(ctx context.Context, projectID string) ([]model.Version, error)
}

// Config sets how many releases are pulled when a project is first tracked or refreshed.
type Config struct {
	InitialReleases int
	RefreshReleases int
}

// Service handles users starting and stopping to track projects.
type Service struct {
	store    Store
	provider Provider
	logger   *slog.Logger
	cfg      Config
}

// NewService creates a tracking Service.
func NewService(store Store, provider Provider, logger *slog.Logger, cfg Config) *Service {
	return &Service{store: store, provider: provider, logger: logger, cfg: cfg}
}

// ProjectDetails is a project together with its stored versions.
type ProjectDetails struct {
	*model.Project
	Versions []model.Version `json:"versions"`
}

// Track links userID to the project named fullName, creating and seeding the
// project the first time anyone tracks it. Seeded versions do not notify.
// Projects are keyed by the full name the hosting API reports, so a
// differently cased request joins the existing project.
func (s *Service) Track(ctx context.Context, userID, fullName string) (*model.Project, error) {
	if _, err := model.ParseRepoIdentifier(fullName); err != nil {
		return nil, err
	}
	logger := s.logger.With("project", fullName, "user_id", userID)

	project, err := s.linkExisting(ctx, userID, fullName)
	if err != nil || project != nil {
		return project, err
	}

	meta, err := s.provider.FetchMetadata(ctx, fullName)
	if err != nil {
		return nil, err
	}
	if meta.FullName == "" {
		meta.FullName = fullName
	}
	if meta.FullName != fullName {
		project, err := s.linkExisting(ctx, userID, meta.FullName)
		if err != nil || project != nil {
			return project, err
		}
	}

	project, err = s.store.CreateTrackedProject(ctx, meta, userID)
	if errors.Is(err, custom_errors.ErrProjectExists) {
		// Another request created it between the lookup and the insert.
		project, err = s.linkExisting(ctx, userID, meta.FullName)
		if err == nil && project == nil {
			err = fmt.Errorf("tracking %s: %w", meta.FullName, custom_errors.ErrProjectNotFound)
		}
		return project, err
	}
	if err != nil {
		return nil, err
	}
	logger.Info("Created tracked project", "project_id", project.ID)

	releases, err := s.provider.FetchReleases(ctx, meta.FullName, 1, s.cfg.InitialReleases)
	if err != nil {
		logger.Warn("Failed to seed initial releases", "error", err)
		return project, nil
	}
	seeded, err := s.store.InsertVersions(ctx, project.ID, releases)
	if err != nil {
		logger.Warn("Failed to store initial releases", "error", err)
		return project, nil
	}
	logger.Info("Seeded initial versions", "count", len(seeded))

	return project, nil
}

// linkExisting adds userID as a tracker of the project stored under fullName.
// It returns a nil project when no such project exists.
func (s *Service) linkExisting(ctx context.Context, userID, fullName string) (*model.Project, error) {
	existing, err := s.store.GetProjectByFullName(ctx, fullName)
	if errors.Is(err, custom_errors.ErrProjectNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := s.store.AddTracker(ctx, userID, existing.ID); err != nil {
		return nil, fmt.Errorf("tracking %s: %w", fullName, err)
	}
	s.logger.Info("User now tracks existing project", "project", fullName, "project_id", existing.ID, "user_id", userID)
	return existing, nil
}

// Untrack unlinks userID from a project and reports whether the project was
// deleted because nobody tracks it anymore.
func (s *Service) Untrack(ctx context.Context, userID, projectID string) (bool, error) {
	deleted, err := s.store.RemoveTracker(ctx, userID, projectID)
	if err != nil {
		return false, err
	}
	if deleted {
		s.logger.Info("Deleted untracked project", "project_id", projectID)
	}
	return deleted, nil
}

// Refresh re-fetches a project's metadata and stores any new tags among its most
// recent releases. A release fetch failure is logged and does not fail the refresh.
func (s *Service) Refresh(ctx context.Context, projectID string) (*ProjectDetails, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	logger := s.logger.With("project", project.FullName, "project_id", project.ID)

	meta, err := s.provider.FetchMetadata(ctx, project.FullName)
	if err != nil {
		return nil, err
	}
	updated, err := s.store.RefreshProject(ctx, project.ID, meta)
	if err != nil {
		return nil, err
	}

	releases, err := s.provider.FetchReleases(ctx, project.FullName, 1, s.cfg.RefreshReleases)
	if err != nil {
		logger.Error("Error fetching releases", "error", err)
	} else if inserted, err := s.store.InsertVersions(ctx, project.ID, releases); err != nil {
		logger.Error("Error storing releases", "error", err)
	} else if len(inserted) > 0 {
		logger.Info("Stored new versions on refresh", "count", len(inserted))
	}

	return s.details(ctx, updated)
}

// Get returns a project with its stored versions, newest first.
func (s *Service) Get(ctx context.Context, projectID string) (*ProjectDetails, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return s.details(ctx, project)
}

func (s *Service) details(ctx context.Context, project *model.Project) (*ProjectDetails, error) {
	versions, err := s.store.ListVersions(ctx, project.ID)
	if err != nil {
		return nil, fmt.Errorf("listing versions: %w", err)
	}
	return &ProjectDetails{Project: project, Versions: versions}, nil
}

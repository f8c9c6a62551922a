// internal/poller/poller.go
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	custom_errors "github-release-tracker/internal/errors"
	"github-release-tracker/internal/metrics"
	"github-release-tracker/internal/model"
)

const (
	defaultReleasesPerCheck = 10
	defaultConcurrency      = 1
)

// Provider is the read-only view of the repository hosting API the poller needs.
type Provider interface {
	FetchMetadata(ctx context.Context, fullName string) (*model.RepositoryMetadata, error)
	FetchReleases(ctx context.Context, fullName string, page, perPage int) ([]model.Release, error)
	FetchLatestRelease(ctx context.Context, fullName string) (*model.Release, error)
}

// Store is the persistence the poller reads tracked projects from and writes results to.
type Store interface {
	ListTrackedProjects(ctx context.Context) ([]model.Project, error)
	ListStoredVersionTags(ctx context.Context, projectID string) (map[string]struct{}, error)
	InsertVersions(ctx context.Context, projectID string, releases []model.Release) ([]model.Version, error)
	UpdateProjectMetadata(ctx context.Context, projectID string, meta *model.RepositoryMetadata) error
	InsertNotification(ctx context.Context, userID, projectID string, typ model.NotificationType, title, message string) error
}

// NewVersion is a version stored during a check.
type NewVersion struct {
	TagName      string    `json:"tagName"`
	Name         *string   `json:"name"`
	Body         *string   `json:"body"`
	PublishedAt  time.Time `json:"publishedAt"`
	IsPrerelease bool      `json:"isPrerelease"`
	IsDraft      bool      `json:"isDraft"`
}

// CheckResult reports what one project check found. Error is set when any step failed;
// NewVersions may still be non-empty if the failure came after the versions were stored.
type CheckResult struct {
	ProjectID   string       `json:"projectId"`
	ProjectName string       `json:"projectName"`
	NewVersions []NewVersion `json:"newVersions"`
	Error       string       `json:"error,omitempty"`
}

// Config tunes a Poller.
type Config struct {
	// ReleasesPerCheck is how many of the most recent releases are compared per project.
	ReleasesPerCheck int
	// Concurrency bounds how many projects are checked in parallel within one sweep.
	Concurrency int
}

// Poller compares tracked projects against their upstream releases.
type Poller struct {
	store    Store
	provider Provider
	metrics  metrics.Recorder
	logger   *slog.Logger

	releasesPerCheck int
	concurrency      int

	running atomic.Bool
}

// New creates a Poller.
func New(store Store, provider Provider, recorder metrics.Recorder, logger *slog.Logger, cfg Config) *Poller {
	if cfg.ReleasesPerCheck <= 0 {
		cfg.ReleasesPerCheck = defaultReleasesPerCheck
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	return &Poller{
		store:            store,
		provider:         provider,
		metrics:          recorder,
		logger:           logger,
		releasesPerCheck: cfg.ReleasesPerCheck,
		concurrency:      cfg.Concurrency,
	}
}

// IsRunning reports whether a sweep is in progress.
func (p *Poller) IsRunning() bool {
	return p.running.Load()
}

// RunSweep checks every tracked project once and returns a result for each project
// that gained versions or failed, in enumeration order. A call made while another
// sweep is in progress returns an empty slice without doing any work.
func (p *Poller) RunSweep(ctx context.Context) []CheckResult {
	if !p.running.CompareAndSwap(false, true) {
		p.logger.Info("Version check already running, skipping")
		p.metrics.SweepSkipped()
		return []CheckResult{}
	}
	defer p.running.Store(false)

	p.metrics.SweepStarted()
	start := time.Now()
	defer func() { p.metrics.SweepFinished(time.Since(start)) }()

	projects, err := p.store.ListTrackedProjects(ctx)
	if err != nil {
		p.logger.Error("Failed to list tracked projects, sweep abandoned", "error", err)
		return []CheckResult{}
	}
	p.logger.Info("Checking projects for updates", "count", len(projects), "concurrency", p.concurrency)

	slots := make([]*CheckResult, len(projects))
	var g errgroup.Group
	g.SetLimit(p.concurrency)

	for i, project := range projects {
		g.Go(func() error {
			slots[i] = p.checkIsolated(ctx, project)
			return nil
		})
	}
	_ = g.Wait() // Per-project failures are folded into results.

	results := make([]CheckResult, 0, len(slots))
	for _, r := range slots {
		if r != nil {
			results = append(results, *r)
		}
	}

	p.logger.Info("Version check completed", "projects_reported", len(results), "duration", time.Since(start).String())
	return results
}

// checkIsolated runs CheckProject and turns any failure, panics included, into a result entry.
func (p *Poller) checkIsolated(ctx context.Context, project model.Project) (result *CheckResult) {
	logger := p.logger.With("project", project.FullName, "project_id", project.ID)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic while checking project", "panic", r)
			p.metrics.ProjectChecked(metrics.OutcomeFailed, custom_errors.KindUnknown.String())
			result = failedResult(project, fmt.Errorf("panic: %v", r))
		}
	}()

	result, err := p.CheckProject(ctx, project)
	switch {
	case err != nil:
		kind := custom_errors.KindOf(err)
		if kind.Transient() {
			logger.Warn("Transient error checking project, next sweep retries", "error", err, "kind", kind.String())
		} else {
			logger.Error("Error checking project", "error", err, "kind", kind.String())
		}
		p.metrics.ProjectChecked(metrics.OutcomeFailed, kind.String())
		if result == nil {
			return failedResult(project, err)
		}
		result.Error = err.Error()
		return result
	case result == nil:
		p.metrics.ProjectChecked(metrics.OutcomeUnchanged, "")
		return nil
	default:
		p.metrics.ProjectChecked(metrics.OutcomeUpdated, "")
		return result
	}
}

func failedResult(project model.Project, err error) *CheckResult {
	return &CheckResult{
		ProjectID:   project.ID,
		ProjectName: project.FullName,
		NewVersions: []NewVersion{},
		Error:       err.Error(),
	}
}

// CheckProject reconciles one project with its upstream releases. It returns a nil
// result when there is nothing new. When the metadata refresh or a notification fails
// after versions were stored, both the result and the error are returned.
func (p *Poller) CheckProject(ctx context.Context, project model.Project) (*CheckResult, error) {
	if _, err := model.ParseRepoIdentifier(project.FullName); err != nil {
		return nil, err
	}
	logger := p.logger.With("project", project.FullName)

	releases, err := p.provider.FetchReleases(ctx, project.FullName, 1, p.releasesPerCheck)
	if err != nil {
		return nil, fmt.Errorf("fetching releases: %w", err)
	}
	if len(releases) == 0 {
		logger.Debug("Project has no releases")
		return nil, nil
	}

	stored, err := p.store.ListStoredVersionTags(ctx, project.ID)
	if err != nil {
		return nil, err
	}

	fresh := make([]model.Release, 0, len(releases))
	for _, r := range releases {
		if _, ok := stored[r.TagName]; !ok {
			fresh = append(fresh, r)
		}
	}
	if len(fresh) == 0 {
		logger.Debug("Project is up to date")
		return nil, nil
	}

	inserted, err := p.store.InsertVersions(ctx, project.ID, fresh)
	if err != nil {
		return nil, err
	}
	if len(inserted) == 0 {
		// Another writer stored the same tags in the meantime.
		return nil, nil
	}
	p.metrics.VersionsStored(len(inserted))
	logger.Info("Found new versions", "count", len(inserted))

	result := &CheckResult{
		ProjectID:   project.ID,
		ProjectName: project.FullName,
		NewVersions: make([]NewVersion, 0, len(inserted)),
	}
	for _, v := range inserted {
		result.NewVersions = append(result.NewVersions, NewVersion{
			TagName:      v.TagName,
			Name:         v.Name,
			Body:         v.Body,
			PublishedAt:  v.PublishedAt,
			IsPrerelease: v.IsPrerelease,
			IsDraft:      v.IsDraft,
		})
	}

	var errs []error
	if err := p.refreshMetadata(ctx, project); err != nil {
		errs = append(errs, err)
	}
	if err := p.notify(ctx, project, result.NewVersions); err != nil {
		errs = append(errs, err)
	}
	return result, errors.Join(errs...)
}

func (p *Poller) refreshMetadata(ctx context.Context, project model.Project) error {
	meta, err := p.provider.FetchMetadata(ctx, project.FullName)
	if err != nil {
		return fmt.Errorf("refreshing metadata: %w", err)
	}
	if err := p.store.UpdateProjectMetadata(ctx, project.ID, meta); err != nil {
		return fmt.Errorf("refreshing metadata: %w", err)
	}
	return nil
}

// notify creates one new_release notification per tracking user and new version.
func (p *Poller) notify(ctx context.Context, project model.Project, versions []NewVersion) error {
	var (
		created int
		errs    []error
	)
	for _, userID := range project.TrackerIDs {
		for _, v := range versions {
			title := fmt.Sprintf("New release: %s", v.TagName)
			message := fmt.Sprintf("A new version %s has been released for %s", v.TagName, project.Name)
			if err := p.store.InsertNotification(ctx, userID, project.ID, model.NotificationNewRelease, title, message); err != nil {
				errs = append(errs, fmt.Errorf("notifying user %s: %w", userID, err))
				continue
			}
			created++
		}
	}
	p.metrics.NotificationsCreated(created)
	return errors.Join(errs...)
}

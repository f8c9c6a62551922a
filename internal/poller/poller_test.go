// internal/poller/poller_test.go
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	custom_errors "github-release-tracker/internal/errors"
	"github-release-tracker/internal/metrics"
	"github-release-tracker/internal/model"
)

// MockProvider is a mock of the Provider interface.
type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) FetchMetadata(ctx context.Context, fullName string) (*model.RepositoryMetadata, error) {
	args := m.Called(ctx, fullName)
	meta, _ := args.Get(0).(*model.RepositoryMetadata)
	return meta, args.Error(1)
}

func (m *MockProvider) FetchReleases(ctx context.Context, fullName string, page, perPage int) ([]model.Release, error) {
	args := m.Called(ctx, fullName, page, perPage)
	releases, _ := args.Get(0).([]model.Release)
	return releases, args.Error(1)
}

func (m *MockProvider) FetchLatestRelease(ctx context.Context, fullName string) (*model.Release, error) {
	args := m.Called(ctx, fullName)
	release, _ := args.Get(0).(*model.Release)
	return release, args.Error(1)
}

type notification struct {
	userID, projectID string
	typ               model.NotificationType
	title, message    string
}

// memStore is an in-memory Store.
type memStore struct {
	mu            sync.Mutex
	projects      []model.Project
	tags          map[string]map[string]struct{}
	versions      map[string][]model.Version
	notifications []notification
	metadata      map[string]*model.RepositoryMetadata

	listErr   error
	insertErr map[string]error
}

func newMemStore(projects ...model.Project) *memStore {
	return &memStore{
		projects:  projects,
		tags:      map[string]map[string]struct{}{},
		versions:  map[string][]model.Version{},
		metadata:  map[string]*model.RepositoryMetadata{},
		insertErr: map[string]error{},
	}
}

func (s *memStore) seedTags(projectID string, tags ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tags[projectID] == nil {
		s.tags[projectID] = map[string]struct{}{}
	}
	for _, t := range tags {
		s.tags[projectID][t] = struct{}{}
	}
}

func (s *memStore) ListTrackedProjects(ctx context.Context) ([]model.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	return append([]model.Project(nil), s.projects...), nil
}

func (s *memStore) ListStoredVersionTags(ctx context.Context, projectID string) (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]struct{}{}
	for t := range s.tags[projectID] {
		out[t] = struct{}{}
	}
	return out, nil
}

func (s *memStore) InsertVersions(ctx context.Context, projectID string, releases []model.Release) ([]model.Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.insertErr[projectID]; err != nil {
		return nil, err
	}
	if s.tags[projectID] == nil {
		s.tags[projectID] = map[string]struct{}{}
	}
	var inserted []model.Version
	for _, r := range releases {
		if _, ok := s.tags[projectID][r.TagName]; ok {
			continue
		}
		s.tags[projectID][r.TagName] = struct{}{}
		v := model.Version{
			ID:           fmt.Sprintf("%s-%s", projectID, r.TagName),
			ProjectID:    projectID,
			TagName:      r.TagName,
			Name:         r.Name,
			Body:         r.Body,
			IsPrerelease: r.Prerelease,
			IsDraft:      r.Draft,
			PublishedAt:  r.PublishedOrCreated(),
		}
		s.versions[projectID] = append(s.versions[projectID], v)
		inserted = append(inserted, v)
	}
	return inserted, nil
}

func (s *memStore) UpdateProjectMetadata(ctx context.Context, projectID string, meta *model.RepositoryMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metadata[projectID] = meta
	return nil
}

func (s *memStore) InsertNotification(ctx context.Context, userID, projectID string, typ model.NotificationType, title, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append(s.notifications, notification{userID, projectID, typ, title, message})
	return nil
}

func (s *memStore) notificationCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.notifications)
}

func (s *memStore) versionCount(projectID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.versions[projectID])
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func newTestPoller(store Store, provider Provider, concurrency int) *Poller {
	recorder := metrics.NewCollector(prometheus.NewRegistry())
	return New(store, provider, recorder, testLogger(), Config{ReleasesPerCheck: 10, Concurrency: concurrency})
}

func project(id, fullName string, trackers ...string) model.Project {
	return model.Project{ID: id, Name: id, FullName: fullName, TrackerIDs: trackers}
}

func release(tag string, published time.Time) model.Release {
	return model.Release{TagName: tag, PublishedAt: &published, CreatedAt: published}
}

var meta = &model.RepositoryMetadata{StarsCount: 5, ForksCount: 1, WatchersCount: 5}

func TestPoller_CheckProject_DeduplicatesByTag(t *testing.T) {
	ctx := context.Background()
	p1 := model.Project{ID: "p1", Name: "cli", FullName: "acme/cli", TrackerIDs: []string{"u1", "u2"}}
	store := newMemStore(p1)
	store.seedTags("p1", "v1.0", "v1.1")

	now := time.Now()
	provider := new(MockProvider)
	provider.On("FetchReleases", ctx, "acme/cli", 1, 10).Return([]model.Release{
		release("v1.2", now), release("v1.1", now.Add(-time.Hour)), release("v1.0", now.Add(-2*time.Hour)),
	}, nil).Once()
	provider.On("FetchMetadata", ctx, "acme/cli").Return(meta, nil).Once()

	result, err := newTestPoller(store, provider, 1).CheckProject(ctx, p1)

	require.NoError(t, err)
	require.NotNil(t, result)
	require.Len(t, result.NewVersions, 1)
	assert.Equal(t, "v1.2", result.NewVersions[0].TagName)
	assert.Equal(t, "acme/cli", result.ProjectName)

	require.Len(t, store.notifications, 2, "one notification per tracking user")
	for _, n := range store.notifications {
		assert.Equal(t, model.NotificationNewRelease, n.typ)
		assert.Equal(t, "p1", n.projectID)
		assert.Equal(t, "New release: v1.2", n.title)
		assert.Equal(t, "A new version v1.2 has been released for cli", n.message)
	}
	assert.Equal(t, meta, store.metadata["p1"])
	provider.AssertExpectations(t)
}

func TestPoller_CheckProject_FanOut(t *testing.T) {
	ctx := context.Background()
	p1 := model.Project{ID: "p1", Name: "cli", FullName: "acme/cli", TrackerIDs: []string{"u1", "u2", "u3", "u4"}}
	store := newMemStore(p1)

	now := time.Now()
	provider := new(MockProvider)
	provider.On("FetchReleases", ctx, "acme/cli", 1, 10).Return([]model.Release{release("v2", now), release("v1", now)}, nil)
	provider.On("FetchMetadata", ctx, "acme/cli").Return(meta, nil)

	result, err := newTestPoller(store, provider, 1).CheckProject(ctx, p1)

	require.NoError(t, err)
	require.Len(t, result.NewVersions, 2)
	require.Len(t, store.notifications, 8)

	perUser := map[string]int{}
	for _, n := range store.notifications {
		assert.Equal(t, model.NotificationNewRelease, n.typ)
		perUser[n.userID]++
	}
	assert.Equal(t, map[string]int{"u1": 2, "u2": 2, "u3": 2, "u4": 2}, perUser)
}

func TestPoller_CheckProject_FallbackTimestamp(t *testing.T) {
	ctx := context.Background()
	p1 := model.Project{ID: "p1", Name: "cli", FullName: "acme/cli"}
	store := newMemStore(p1)

	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	provider := new(MockProvider)
	provider.On("FetchReleases", ctx, "acme/cli", 1, 10).Return([]model.Release{{TagName: "v0.1", CreatedAt: created}}, nil)
	provider.On("FetchMetadata", ctx, "acme/cli").Return(meta, nil)

	result, err := newTestPoller(store, provider, 1).CheckProject(ctx, p1)

	require.NoError(t, err)
	require.Len(t, result.NewVersions, 1)
	assert.True(t, result.NewVersions[0].PublishedAt.Equal(created))
	assert.True(t, store.versions["p1"][0].PublishedAt.Equal(created))
}

func TestPoller_CheckProject_NothingToDo(t *testing.T) {
	ctx := context.Background()

	t.Run("no releases upstream", func(t *testing.T) {
		p1 := project("p1", "acme/p1", "u1")
		store := newMemStore(p1)
		provider := new(MockProvider)
		provider.On("FetchReleases", ctx, "acme/p1", 1, 10).Return([]model.Release{}, nil)

		result, err := newTestPoller(store, provider, 1).CheckProject(ctx, p1)

		assert.NoError(t, err)
		assert.Nil(t, result)
		provider.AssertNotCalled(t, "FetchMetadata", mock.Anything, mock.Anything)
	})

	t.Run("all releases already stored", func(t *testing.T) {
		p1 := project("p1", "acme/p1", "u1")
		store := newMemStore(p1)
		store.seedTags("p1", "v1")
		provider := new(MockProvider)
		provider.On("FetchReleases", ctx, "acme/p1", 1, 10).Return([]model.Release{release("v1", time.Now())}, nil)

		result, err := newTestPoller(store, provider, 1).CheckProject(ctx, p1)

		assert.NoError(t, err)
		assert.Nil(t, result)
		assert.Zero(t, store.notificationCount())
		provider.AssertNotCalled(t, "FetchMetadata", mock.Anything, mock.Anything)
	})
}

func TestPoller_CheckProject_InvalidFullName(t *testing.T) {
	p1 := model.Project{ID: "p1", Name: "broken", FullName: "no-separator"}
	provider := new(MockProvider)

	result, err := newTestPoller(newMemStore(p1), provider, 1).CheckProject(context.Background(), p1)

	assert.Nil(t, result)
	var formatErr *custom_errors.ErrInvalidRepoFormat
	assert.ErrorAs(t, err, &formatErr)
	provider.AssertNotCalled(t, "FetchReleases", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPoller_CheckProject_MetadataFailureKeepsVersions(t *testing.T) {
	ctx := context.Background()
	p1 := model.Project{ID: "p1", Name: "cli", FullName: "acme/cli", TrackerIDs: []string{"u1"}}
	store := newMemStore(p1)

	metaErr := &custom_errors.ProviderError{Kind: custom_errors.KindRateLimited, Op: "get repository", Repo: "acme/cli", Err: errors.New("quota")}
	provider := new(MockProvider)
	provider.On("FetchReleases", ctx, "acme/cli", 1, 10).Return([]model.Release{release("v1", time.Now())}, nil)
	provider.On("FetchMetadata", ctx, "acme/cli").Return(nil, metaErr)

	result, err := newTestPoller(store, provider, 1).CheckProject(ctx, p1)

	require.Error(t, err)
	assert.ErrorIs(t, err, custom_errors.ErrRateLimited)
	require.NotNil(t, result)
	assert.Len(t, result.NewVersions, 1)
	assert.Equal(t, 1, store.versionCount("p1"), "stored versions are not rolled back")
	assert.Equal(t, 1, store.notificationCount(), "notifications are still created")
	assert.NotContains(t, store.metadata, "p1")
}

func TestPoller_RunSweep_Idempotent(t *testing.T) {
	ctx := context.Background()
	p1 := project("p1", "acme/p1", "u1", "u2")
	store := newMemStore(p1)

	provider := new(MockProvider)
	provider.On("FetchReleases", ctx, "acme/p1", 1, 10).Return([]model.Release{release("v1", time.Now()), release("v0", time.Now())}, nil)
	provider.On("FetchMetadata", ctx, "acme/p1").Return(meta, nil)

	p := newTestPoller(store, provider, 1)

	first := p.RunSweep(ctx)
	require.Len(t, first, 1)
	assert.Len(t, first[0].NewVersions, 2)
	assert.Equal(t, 4, store.notificationCount())

	second := p.RunSweep(ctx)
	assert.Empty(t, second)
	assert.Equal(t, 2, store.versionCount("p1"))
	assert.Equal(t, 4, store.notificationCount(), "second sweep creates no notifications")
	provider.AssertNumberOfCalls(t, "FetchMetadata", 1)
}

func TestPoller_RunSweep_FaultIsolation(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(
		project("p1", "acme/p1", "u1"),
		project("p2", "acme/p2", "u1"),
		project("p3", "acme/p3", "u1"),
	)

	provider := new(MockProvider)
	provider.On("FetchReleases", ctx, "acme/p1", 1, 10).Return([]model.Release{release("v1", time.Now())}, nil)
	provider.On("FetchReleases", ctx, "acme/p2", 1, 10).Return(nil, &custom_errors.ProviderError{
		Kind: custom_errors.KindNetwork, Op: "list releases", Repo: "acme/p2", Err: errors.New("connection reset"),
	})
	provider.On("FetchReleases", ctx, "acme/p3", 1, 10).Return([]model.Release{release("v3", time.Now())}, nil)
	provider.On("FetchMetadata", ctx, mock.Anything).Return(meta, nil)

	results := newTestPoller(store, provider, 1).RunSweep(ctx)

	require.Len(t, results, 3)
	assert.Equal(t, "p1", results[0].ProjectID)
	assert.Empty(t, results[0].Error)
	assert.Len(t, results[0].NewVersions, 1)

	assert.Equal(t, "p2", results[1].ProjectID)
	assert.Contains(t, results[1].Error, "connection reset")
	assert.NotNil(t, results[1].NewVersions)
	assert.Empty(t, results[1].NewVersions)

	assert.Equal(t, "p3", results[2].ProjectID)
	assert.Empty(t, results[2].Error)
	assert.Len(t, results[2].NewVersions, 1)
}

func TestPoller_RunSweep_VanishedProject(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(project("p1", "acme/p1", "u1"), project("p2", "acme/p2", "u1"))
	store.insertErr["p1"] = custom_errors.ErrProjectNotFound

	provider := new(MockProvider)
	provider.On("FetchReleases", ctx, mock.Anything, 1, 10).Return([]model.Release{release("v1", time.Now())}, nil)
	provider.On("FetchMetadata", ctx, "acme/p2").Return(meta, nil)

	results := newTestPoller(store, provider, 1).RunSweep(ctx)

	require.Len(t, results, 2)
	assert.Equal(t, custom_errors.ErrProjectNotFound.Error(), results[0].Error)
	assert.Empty(t, results[0].NewVersions)
	assert.Empty(t, results[1].Error)
	assert.Equal(t, 1, store.notificationCount(), "only the surviving project notifies")
}

func TestPoller_RunSweep_ListFailure(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(project("p1", "acme/p1"))
	store.listErr = errors.New("connection refused")
	provider := new(MockProvider)
	p := newTestPoller(store, provider, 1)

	assert.Empty(t, p.RunSweep(ctx))
	assert.False(t, p.IsRunning(), "in-progress flag is released")

	store.listErr = nil
	provider.On("FetchReleases", ctx, "acme/p1", 1, 10).Return([]model.Release{}, nil).Once()
	assert.Empty(t, p.RunSweep(ctx))
	provider.AssertExpectations(t)
}

func TestPoller_RunSweep_PanicIsIsolated(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(project("p1", "acme/p1", "u1"), project("p2", "acme/p2", "u1"))

	provider := new(MockProvider)
	provider.On("FetchReleases", ctx, "acme/p1", 1, 10).Panic("boom")
	provider.On("FetchReleases", ctx, "acme/p2", 1, 10).Return([]model.Release{release("v1", time.Now())}, nil)
	provider.On("FetchMetadata", ctx, "acme/p2").Return(meta, nil)

	p := newTestPoller(store, provider, 1)
	results := p.RunSweep(ctx)

	require.Len(t, results, 2)
	assert.Equal(t, "panic: boom", results[0].Error)
	assert.Empty(t, results[1].Error)
	assert.False(t, p.IsRunning())
}

func TestPoller_RunSweep_NoOverlap(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(project("p1", "acme/p1", "u1", "u2"))

	entered := make(chan struct{})
	release1 := make(chan struct{})
	provider := new(MockProvider)
	provider.On("FetchReleases", ctx, "acme/p1", 1, 10).Run(func(mock.Arguments) {
		close(entered)
		<-release1
	}).Return([]model.Release{release("v1", time.Now())}, nil).Once()
	provider.On("FetchMetadata", ctx, "acme/p1").Return(meta, nil)

	p := newTestPoller(store, provider, 1)

	done := make(chan []CheckResult)
	go func() { done <- p.RunSweep(ctx) }()
	<-entered

	assert.True(t, p.IsRunning())
	overlapping := p.RunSweep(ctx)
	assert.NotNil(t, overlapping)
	assert.Empty(t, overlapping, "a sweep requested mid-sweep does no work")

	close(release1)
	first := <-done

	require.Len(t, first, 1)
	assert.Equal(t, 2, store.notificationCount(), "no double notification")
	assert.Equal(t, 1, store.versionCount("p1"))
	provider.AssertNumberOfCalls(t, "FetchReleases", 1)
}

func TestPoller_RunSweep_ConcurrentKeepsOrder(t *testing.T) {
	ctx := context.Background()
	var projects []model.Project
	for i := 0; i < 8; i++ {
		projects = append(projects, project(fmt.Sprintf("p%d", i), fmt.Sprintf("acme/p%d", i), "u1"))
	}
	store := newMemStore(projects...)

	provider := new(MockProvider)
	for i := range projects {
		// Later projects answer faster.
		delay := time.Duration(len(projects)-i) * 5 * time.Millisecond
		provider.On("FetchReleases", ctx, projects[i].FullName, 1, 10).
			After(delay).
			Return([]model.Release{release("v1", time.Now())}, nil)
	}
	provider.On("FetchMetadata", ctx, mock.Anything).Return(meta, nil)

	results := newTestPoller(store, provider, 4).RunSweep(ctx)

	require.Len(t, results, len(projects))
	for i, r := range results {
		assert.Equal(t, projects[i].ID, r.ProjectID)
	}
	assert.Equal(t, len(projects), store.notificationCount())
}

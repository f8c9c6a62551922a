// internal/store/store.go
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github-release-tracker/internal/database"
	custom_errors "github-release-tracker/internal/errors"
	"github-release-tracker/internal/model"
)

const (
	foreignKeyViolation = "23503"
	uniqueViolation     = "23505"

	recentVersionsPerProject = 5
)

// Store is the Postgres-backed persistence layer for projects, versions and notifications.
type Store struct {
	dbpool *pgxpool.Pool
	q      database.Querier
	now    func() time.Time
}

// New creates a Store on top of a connection pool.
func New(dbpool *pgxpool.Pool) *Store {
	return &Store{
		dbpool: dbpool,
		q:      database.New(dbpool),
		now:    time.Now,
	}
}

// ListTrackedProjects returns every project with its tracker ids and latest stored version.
func (s *Store) ListTrackedProjects(ctx context.Context) ([]model.Project, error) {
	rows, err := s.q.ListTrackedProjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing tracked projects: %w", err)
	}

	projects := make([]model.Project, 0, len(rows))
	for _, row := range rows {
		p := toModelProject(row.Project)
		p.TrackerIDs = row.TrackerIDs
		if row.LatestVersionID.Valid {
			p.LatestVersion = &model.Version{
				ID:          row.LatestVersionID.String,
				ProjectID:   p.ID,
				TagName:     row.LatestTagName.String,
				PublishedAt: row.LatestPublishedAt.Time,
			}
		}
		projects = append(projects, p)
	}
	return projects, nil
}

// ListStoredVersionTags returns the set of tag names already stored for a project.
func (s *Store) ListStoredVersionTags(ctx context.Context, projectID string) (map[string]struct{}, error) {
	tags, err := s.q.ListVersionTagsByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("listing version tags: %w", err)
	}
	set := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		set[t] = struct{}{}
	}
	return set, nil
}

// InsertVersions stores the releases as versions and returns the rows actually written.
// Tags stored concurrently by another writer are silently skipped.
func (s *Store) InsertVersions(ctx context.Context, projectID string, releases []model.Release) ([]model.Version, error) {
	params := make([]database.CreateVersionsParams, len(releases))
	for i, r := range releases {
		params[i] = database.CreateVersionsParams{
			ID:           uuid.NewString(),
			ProjectID:    projectID,
			TagName:      r.TagName,
			Name:         toText(r.Name),
			Body:         toText(r.Body),
			IsPrerelease: r.Prerelease,
			IsDraft:      r.Draft,
			PublishedAt:  r.PublishedOrCreated(),
		}
	}

	rows, err := s.q.CreateVersions(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("inserting versions: %w", mapProjectErr(err))
	}

	versions := make([]model.Version, 0, len(rows))
	for _, v := range rows {
		versions = append(versions, toModelVersion(v))
	}
	return versions, nil
}

// UpdateProjectMetadata refreshes the cached star/fork/watcher counts and lastChecked.
func (s *Store) UpdateProjectMetadata(ctx context.Context, projectID string, meta *model.RepositoryMetadata) error {
	n, err := s.q.UpdateProjectStats(ctx, database.UpdateProjectStatsParams{
		ID:          projectID,
		Stars:       int32(meta.StarsCount),
		Forks:       int32(meta.ForksCount),
		Watchers:    int32(meta.WatchersCount),
		LastChecked: s.now(),
	})
	if err != nil {
		return fmt.Errorf("updating project metadata: %w", err)
	}
	if n == 0 {
		return custom_errors.ErrProjectNotFound
	}
	return nil
}

// InsertNotification creates one notification for a user.
func (s *Store) InsertNotification(ctx context.Context, userID, projectID string, typ model.NotificationType, title, message string) error {
	_, err := s.q.CreateNotification(ctx, database.CreateNotificationParams{
		ID:        uuid.NewString(),
		UserID:    userID,
		ProjectID: pgtype.Text{String: projectID, Valid: projectID != ""},
		Type:      string(typ),
		Title:     title,
		Message:   message,
	})
	if err != nil {
		return fmt.Errorf("inserting notification: %w", mapProjectErr(err))
	}
	return nil
}

// ListNotifications returns one page of a user's notifications, newest first,
// together with the total number matching the filter.
func (s *Store) ListNotifications(ctx context.Context, userID string, unreadOnly bool, page model.PageRequest) ([]model.Notification, int, error) {
	rows, err := s.q.ListNotificationsPage(ctx, database.ListNotificationsPageParams{
		UserID:     userID,
		UnreadOnly: unreadOnly,
		Limit:      int32(page.Limit),
		Offset:     int32(page.Offset()),
	})
	if err != nil {
		return nil, 0, fmt.Errorf("listing notifications: %w", err)
	}
	total, err := s.q.CountNotifications(ctx, database.CountNotificationsParams{UserID: userID, UnreadOnly: unreadOnly})
	if err != nil {
		return nil, 0, fmt.Errorf("counting notifications: %w", err)
	}

	out := make([]model.Notification, 0, len(rows))
	for _, n := range rows {
		out = append(out, model.Notification{
			ID:        n.ID,
			UserID:    n.UserID,
			ProjectID: fromText(n.ProjectID),
			Type:      model.NotificationType(n.Type),
			Title:     n.Title,
			Message:   n.Message,
			IsRead:    n.IsRead,
			CreatedAt: n.CreatedAt,
		})
	}
	return out, int(total), nil
}

// MarkNotificationsRead sets the read flag on the given notifications and
// returns how many were updated. Unknown ids are ignored.
func (s *Store) MarkNotificationsRead(ctx context.Context, ids []string, isRead bool) (int, error) {
	n, err := s.q.MarkNotificationsRead(ctx, database.MarkNotificationsReadParams{IDs: ids, IsRead: isRead})
	if err != nil {
		return 0, fmt.Errorf("updating notifications: %w", err)
	}
	return int(n), nil
}

// ListProjectsByTracker returns one page of the projects a user tracks, most
// recently updated first, each with its newest versions.
func (s *Store) ListProjectsByTracker(ctx context.Context, userID string, page model.PageRequest) ([]model.ProjectSummary, int, error) {
	rows, err := s.q.ListProjectsByTracker(ctx, database.ListProjectsByTrackerParams{
		UserID: userID,
		Limit:  int32(page.Limit),
		Offset: int32(page.Offset()),
	})
	if err != nil {
		return nil, 0, fmt.Errorf("listing projects: %w", err)
	}
	total, err := s.q.CountProjectsByTracker(ctx, userID)
	if err != nil {
		return nil, 0, fmt.Errorf("counting projects: %w", err)
	}

	summaries := make([]model.ProjectSummary, 0, len(rows))
	if len(rows) == 0 {
		return summaries, int(total), nil
	}

	ids := make([]string, len(rows))
	for i, p := range rows {
		ids[i] = p.ID
	}
	recent, err := s.q.ListRecentVersionsByProjects(ctx, database.ListRecentVersionsByProjectsParams{
		ProjectIDs: ids,
		PerProject: recentVersionsPerProject,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("listing recent versions: %w", err)
	}
	byProject := make(map[string][]model.Version, len(rows))
	for _, v := range recent {
		byProject[v.ProjectID] = append(byProject[v.ProjectID], toModelVersion(v))
	}

	for _, p := range rows {
		versions := byProject[p.ID]
		if versions == nil {
			versions = []model.Version{}
		}
		summaries = append(summaries, model.ProjectSummary{Project: toModelProject(p), RecentVersions: versions})
	}
	return summaries, int(total), nil
}

// GetProject returns a project by id.
func (s *Store) GetProject(ctx context.Context, id string) (*model.Project, error) {
	p, err := s.q.GetProjectByID(ctx, id)
	if err != nil {
		return nil, mapProjectErr(err)
	}
	out := toModelProject(p)
	return &out, nil
}

// GetProjectByFullName returns a project by its 'owner/name'.
func (s *Store) GetProjectByFullName(ctx context.Context, fullName string) (*model.Project, error) {
	p, err := s.q.GetProjectByFullName(ctx, fullName)
	if err != nil {
		return nil, mapProjectErr(err)
	}
	out := toModelProject(p)
	return &out, nil
}

// CreateTrackedProject creates a project from fetched metadata and links the first tracker.
func (s *Store) CreateTrackedProject(ctx context.Context, meta *model.RepositoryMetadata, userID string) (*model.Project, error) {
	var created database.Project
	err := s.inTx(ctx, func(q *database.Queries) error {
		if err := q.EnsureUser(ctx, userID); err != nil {
			return err
		}
		var err error
		created, err = q.CreateProject(ctx, database.CreateProjectParams{
			ID:          uuid.NewString(),
			Name:        meta.Name,
			FullName:    meta.FullName,
			Description: toText(meta.Description),
			Language:    toText(meta.Language),
			Stars:       int32(meta.StarsCount),
			Forks:       int32(meta.ForksCount),
			Watchers:    int32(meta.WatchersCount),
			Avatar:      pgtype.Text{String: meta.AvatarURL, Valid: meta.AvatarURL != ""},
			Homepage:    toText(meta.Homepage),
			Topics:      meta.Topics,
			IsPrivate:   meta.Private,
			IsArchived:  meta.Archived,
		})
		if err != nil {
			return err
		}
		return q.AddProjectTracker(ctx, database.AddProjectTrackerParams{UserID: userID, ProjectID: created.ID})
	})
	if err != nil {
		return nil, fmt.Errorf("creating project %s: %w", meta.FullName, mapProjectErr(err))
	}
	out := toModelProject(created)
	return &out, nil
}

// AddTracker links a user to an existing project. Linking twice is a no-op.
// Users are created on first use.
func (s *Store) AddTracker(ctx context.Context, userID, projectID string) error {
	err := s.inTx(ctx, func(q *database.Queries) error {
		if err := q.EnsureUser(ctx, userID); err != nil {
			return err
		}
		return q.AddProjectTracker(ctx, database.AddProjectTrackerParams{UserID: userID, ProjectID: projectID})
	})
	if err != nil {
		return mapProjectErr(err)
	}
	return nil
}

// RemoveTracker unlinks a user and deletes the project once nobody tracks it.
// It reports whether the project was deleted.
func (s *Store) RemoveTracker(ctx context.Context, userID, projectID string) (bool, error) {
	var deleted bool
	err := s.inTx(ctx, func(q *database.Queries) error {
		if _, err := q.RemoveProjectTracker(ctx, database.RemoveProjectTrackerParams{UserID: userID, ProjectID: projectID}); err != nil {
			return err
		}
		remaining, err := q.CountProjectTrackers(ctx, projectID)
		if err != nil {
			return err
		}
		if remaining > 0 {
			return nil
		}
		n, err := q.DeleteProject(ctx, projectID)
		deleted = n > 0
		return err
	})
	if err != nil {
		return false, fmt.Errorf("removing tracker: %w", err)
	}
	return deleted, nil
}

// RefreshProject overwrites every cached metadata field of a project.
func (s *Store) RefreshProject(ctx context.Context, projectID string, meta *model.RepositoryMetadata) (*model.Project, error) {
	p, err := s.q.UpdateProjectMetadata(ctx, database.UpdateProjectMetadataParams{
		ID:          projectID,
		Name:        meta.Name,
		Description: toText(meta.Description),
		Language:    toText(meta.Language),
		Stars:       int32(meta.StarsCount),
		Forks:       int32(meta.ForksCount),
		Watchers:    int32(meta.WatchersCount),
		Avatar:      pgtype.Text{String: meta.AvatarURL, Valid: meta.AvatarURL != ""},
		Homepage:    toText(meta.Homepage),
		Topics:      meta.Topics,
		IsPrivate:   meta.Private,
		IsArchived:  meta.Archived,
		LastChecked: s.now(),
	})
	if err != nil {
		return nil, mapProjectErr(err)
	}
	out := toModelProject(p)
	return &out, nil
}

// ListVersionsPage returns one page of a project's versions, newest first, and
// the total matching the filter. Prereleases are skipped unless asked for.
func (s *Store) ListVersionsPage(ctx context.Context, projectID string, includePrereleases bool, page model.PageRequest) ([]model.Version, int, error) {
	rows, err := s.q.ListVersionsPage(ctx, database.ListVersionsPageParams{
		ProjectID:          projectID,
		IncludePrereleases: includePrereleases,
		Limit:              int32(page.Limit),
		Offset:             int32(page.Offset()),
	})
	if err != nil {
		return nil, 0, fmt.Errorf("listing versions: %w", err)
	}
	total, err := s.q.CountVersions(ctx, database.CountVersionsParams{ProjectID: projectID, IncludePrereleases: includePrereleases})
	if err != nil {
		return nil, 0, fmt.Errorf("counting versions: %w", err)
	}
	versions := make([]model.Version, 0, len(rows))
	for _, v := range rows {
		versions = append(versions, toModelVersion(v))
	}
	return versions, int(total), nil
}

// ListVersions returns the stored versions of a project, newest first.
func (s *Store) ListVersions(ctx context.Context, projectID string) ([]model.Version, error) {
	rows, err := s.q.ListVersionsByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	versions := make([]model.Version, 0, len(rows))
	for _, v := range rows {
		versions = append(versions, toModelVersion(v))
	}
	return versions, nil
}

// inTx runs fn inside a transaction.
func (s *Store) inTx(ctx context.Context, fn func(q *database.Queries) error) error {
	tx, err := s.dbpool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // Rollback is a no-op if the transaction is already committed.

	if err := fn(database.New(tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// mapProjectErr turns "row is gone" conditions into ErrProjectNotFound and a
// duplicate full name into ErrProjectExists.
func mapProjectErr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return custom_errors.ErrProjectNotFound
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch {
	case pgErr.Code == foreignKeyViolation && strings.Contains(pgErr.ConstraintName, "project_id"):
		return fmt.Errorf("%w: %s", custom_errors.ErrProjectNotFound, pgErr.ConstraintName)
	case pgErr.Code == uniqueViolation && strings.Contains(pgErr.ConstraintName, "full_name"):
		return fmt.Errorf("%w: %s", custom_errors.ErrProjectExists, pgErr.ConstraintName)
	}
	return err
}

func toModelProject(p database.Project) model.Project {
	return model.Project{
		ID:          p.ID,
		Name:        p.Name,
		FullName:    p.FullName,
		Description: fromText(p.Description),
		Language:    fromText(p.Language),
		Stars:       int(p.Stars),
		Forks:       int(p.Forks),
		Watchers:    int(p.Watchers),
		Avatar:      fromText(p.Avatar),
		Homepage:    fromText(p.Homepage),
		Topics:      p.Topics,
		IsPrivate:   p.IsPrivate,
		IsArchived:  p.IsArchived,
		LastChecked: p.LastChecked,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func toModelVersion(v database.Version) model.Version {
	return model.Version{
		ID:           v.ID,
		ProjectID:    v.ProjectID,
		TagName:      v.TagName,
		Name:         fromText(v.Name),
		Body:         fromText(v.Body),
		IsPrerelease: v.IsPrerelease,
		IsDraft:      v.IsDraft,
		PublishedAt:  v.PublishedAt,
		CreatedAt:    v.CreatedAt,
		UpdatedAt:    v.UpdatedAt,
	}
}

func toText(s *string) pgtype.Text {
	if s == nil {
		return pgtype.Text{}
	}
	return pgtype.Text{String: *s, Valid: true}
}

func fromText(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	s := t.String
	return &s
}

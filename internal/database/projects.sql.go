// internal/database/projects.sql.go
package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

const projectColumns = `id, name, full_name, description, language, stars, forks, watchers,
	avatar, homepage, topics, is_private, is_archived, last_checked, created_at, updated_at`

func scanProject(row interface{ Scan(...any) error }) (Project, error) {
	var i Project
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.FullName,
		&i.Description,
		&i.Language,
		&i.Stars,
		&i.Forks,
		&i.Watchers,
		&i.Avatar,
		&i.Homepage,
		&i.Topics,
		&i.IsPrivate,
		&i.IsArchived,
		&i.LastChecked,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const createProject = `-- name: CreateProject :one
INSERT INTO projects (
    id, name, full_name, description, language, stars, forks, watchers,
    avatar, homepage, topics, is_private, is_archived
) VALUES (
    $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, COALESCE($11::text[], '{}'), $12, $13
)
RETURNING ` + projectColumns

type CreateProjectParams struct {
	ID          string
	Name        string
	FullName    string
	Description pgtype.Text
	Language    pgtype.Text
	Stars       int32
	Forks       int32
	Watchers    int32
	Avatar      pgtype.Text
	Homepage    pgtype.Text
	Topics      []string
	IsPrivate   bool
	IsArchived  bool
}

func (q *Queries) CreateProject(ctx context.Context, arg CreateProjectParams) (Project, error) {
	row := q.db.QueryRow(ctx, createProject,
		arg.ID,
		arg.Name,
		arg.FullName,
		arg.Description,
		arg.Language,
		arg.Stars,
		arg.Forks,
		arg.Watchers,
		arg.Avatar,
		arg.Homepage,
		arg.Topics,
		arg.IsPrivate,
		arg.IsArchived,
	)
	return scanProject(row)
}

const getProjectByID = `-- name: GetProjectByID :one
SELECT ` + projectColumns + ` FROM projects WHERE id = $1`

func (q *Queries) GetProjectByID(ctx context.Context, id string) (Project, error) {
	return scanProject(q.db.QueryRow(ctx, getProjectByID, id))
}

const getProjectByFullName = `-- name: GetProjectByFullName :one
SELECT ` + projectColumns + ` FROM projects WHERE full_name = $1`

func (q *Queries) GetProjectByFullName(ctx context.Context, fullName string) (Project, error) {
	return scanProject(q.db.QueryRow(ctx, getProjectByFullName, fullName))
}

const listProjectsByTracker = `-- name: ListProjectsByTracker :many
SELECT ` + projectColumns + ` FROM projects
WHERE id IN (SELECT project_id FROM project_trackers WHERE user_id = $1)
ORDER BY updated_at DESC, id
LIMIT $2 OFFSET $3`

type ListProjectsByTrackerParams struct {
	UserID string
	Limit  int32
	Offset int32
}

func (q *Queries) ListProjectsByTracker(ctx context.Context, arg ListProjectsByTrackerParams) ([]Project, error) {
	rows, err := q.db.Query(ctx, listProjectsByTracker, arg.UserID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const countProjectsByTracker = `-- name: CountProjectsByTracker :one
SELECT count(*) FROM project_trackers WHERE user_id = $1`

func (q *Queries) CountProjectsByTracker(ctx context.Context, userID string) (int64, error) {
	row := q.db.QueryRow(ctx, countProjectsByTracker, userID)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const updateProjectStats = `-- name: UpdateProjectStats :execrows
UPDATE projects
SET stars = $2, forks = $3, watchers = $4, last_checked = $5, updated_at = now()
WHERE id = $1`

type UpdateProjectStatsParams struct {
	ID          string
	Stars       int32
	Forks       int32
	Watchers    int32
	LastChecked time.Time
}

func (q *Queries) UpdateProjectStats(ctx context.Context, arg UpdateProjectStatsParams) (int64, error) {
	result, err := q.db.Exec(ctx, updateProjectStats,
		arg.ID,
		arg.Stars,
		arg.Forks,
		arg.Watchers,
		arg.LastChecked,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const updateProjectMetadata = `-- name: UpdateProjectMetadata :one
UPDATE projects
SET name = $2,
    description = $3,
    language = $4,
    stars = $5,
    forks = $6,
    watchers = $7,
    avatar = $8,
    homepage = $9,
    topics = COALESCE($10::text[], '{}'),
    is_private = $11,
    is_archived = $12,
    last_checked = $13,
    updated_at = now()
WHERE id = $1
RETURNING ` + projectColumns

type UpdateProjectMetadataParams struct {
	ID          string
	Name        string
	Description pgtype.Text
	Language    pgtype.Text
	Stars       int32
	Forks       int32
	Watchers    int32
	Avatar      pgtype.Text
	Homepage    pgtype.Text
	Topics      []string
	IsPrivate   bool
	IsArchived  bool
	LastChecked time.Time
}

func (q *Queries) UpdateProjectMetadata(ctx context.Context, arg UpdateProjectMetadataParams) (Project, error) {
	row := q.db.QueryRow(ctx, updateProjectMetadata,
		arg.ID,
		arg.Name,
		arg.Description,
		arg.Language,
		arg.Stars,
		arg.Forks,
		arg.Watchers,
		arg.Avatar,
		arg.Homepage,
		arg.Topics,
		arg.IsPrivate,
		arg.IsArchived,
		arg.LastChecked,
	)
	return scanProject(row)
}

const deleteProject = `-- name: DeleteProject :execrows
DELETE FROM projects WHERE id = $1`

func (q *Queries) DeleteProject(ctx context.Context, id string) (int64, error) {
	result, err := q.db.Exec(ctx, deleteProject, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const listTrackedProjects = `-- name: ListTrackedProjects :many
SELECT p.id, p.name, p.full_name, p.description, p.language, p.stars, p.forks, p.watchers,
       p.avatar, p.homepage, p.topics, p.is_private, p.is_archived, p.last_checked, p.created_at, p.updated_at,
       COALESCE(
           (SELECT array_agg(t.user_id ORDER BY t.created_at, t.user_id)
            FROM project_trackers t WHERE t.project_id = p.id),
           '{}'
       )::text[] AS tracker_ids,
       v.id AS latest_version_id,
       v.tag_name AS latest_tag_name,
       v.published_at AS latest_published_at
FROM projects p
LEFT JOIN LATERAL (
    SELECT id, tag_name, published_at
    FROM versions
    WHERE project_id = p.id
    ORDER BY published_at DESC
    LIMIT 1
) v ON TRUE
ORDER BY p.created_at, p.id`

type ListTrackedProjectsRow struct {
	Project           Project
	TrackerIDs        []string
	LatestVersionID   pgtype.Text
	LatestTagName     pgtype.Text
	LatestPublishedAt pgtype.Timestamptz
}

func (q *Queries) ListTrackedProjects(ctx context.Context) ([]ListTrackedProjectsRow, error) {
	rows, err := q.db.Query(ctx, listTrackedProjects)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ListTrackedProjectsRow
	for rows.Next() {
		var i ListTrackedProjectsRow
		if err := rows.Scan(
			&i.Project.ID,
			&i.Project.Name,
			&i.Project.FullName,
			&i.Project.Description,
			&i.Project.Language,
			&i.Project.Stars,
			&i.Project.Forks,
			&i.Project.Watchers,
			&i.Project.Avatar,
			&i.Project.Homepage,
			&i.Project.Topics,
			&i.Project.IsPrivate,
			&i.Project.IsArchived,
			&i.Project.LastChecked,
			&i.Project.CreatedAt,
			&i.Project.UpdatedAt,
			&i.TrackerIDs,
			&i.LatestVersionID,
			&i.LatestTagName,
			&i.LatestPublishedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const addProjectTracker = `-- name: AddProjectTracker :exec
INSERT INTO project_trackers (user_id, project_id) VALUES ($1, $2)
ON CONFLICT (user_id, project_id) DO NOTHING`

type AddProjectTrackerParams struct {
	UserID    string
	ProjectID string
}

func (q *Queries) AddProjectTracker(ctx context.Context, arg AddProjectTrackerParams) error {
	_, err := q.db.Exec(ctx, addProjectTracker, arg.UserID, arg.ProjectID)
	return err
}

const removeProjectTracker = `-- name: RemoveProjectTracker :execrows
DELETE FROM project_trackers WHERE user_id = $1 AND project_id = $2`

type RemoveProjectTrackerParams struct {
	UserID    string
	ProjectID string
}

func (q *Queries) RemoveProjectTracker(ctx context.Context, arg RemoveProjectTrackerParams) (int64, error) {
	result, err := q.db.Exec(ctx, removeProjectTracker, arg.UserID, arg.ProjectID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const countProjectTrackers = `-- name: CountProjectTrackers :one
SELECT count(*) FROM project_trackers WHERE project_id = $1`

func (q *Queries) CountProjectTrackers(ctx context.Context, projectID string) (int64, error) {
	row := q.db.QueryRow(ctx, countProjectTrackers, projectID)
	var count int64
	err := row.Scan(&count)
	return count, err
}

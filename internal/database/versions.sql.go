// internal/database/versions.sql.go
package database

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const versionColumns = `id, project_id, tag_name, name, body, is_prerelease, is_draft, published_at, created_at, updated_at`

func scanVersion(row interface{ Scan(...any) error }) (Version, error) {
	var i Version
	err := row.Scan(
		&i.ID,
		&i.ProjectID,
		&i.TagName,
		&i.Name,
		&i.Body,
		&i.IsPrerelease,
		&i.IsDraft,
		&i.PublishedAt,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const createVersion = `-- name: CreateVersions :batchone
INSERT INTO versions (id, project_id, tag_name, name, body, is_prerelease, is_draft, published_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (project_id, tag_name) DO NOTHING
RETURNING ` + versionColumns

type CreateVersionsParams struct {
	ID           string
	ProjectID    string
	TagName      string
	Name         pgtype.Text
	Body         pgtype.Text
	IsPrerelease bool
	IsDraft      bool
	PublishedAt  time.Time
}

// CreateVersions inserts all rows in one batch and returns only the rows that
// were actually written; tags that already exist for the project are skipped.
func (q *Queries) CreateVersions(ctx context.Context, arg []CreateVersionsParams) ([]Version, error) {
	if len(arg) == 0 {
		return nil, nil
	}

	batch := &pgx.Batch{}
	for _, a := range arg {
		batch.Queue(createVersion,
			a.ID,
			a.ProjectID,
			a.TagName,
			a.Name,
			a.Body,
			a.IsPrerelease,
			a.IsDraft,
			a.PublishedAt,
		)
	}

	br := q.db.SendBatch(ctx, batch)
	defer br.Close()

	var items []Version
	for range arg {
		v, err := scanVersion(br.QueryRow())
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	return items, nil
}

const listVersionTagsByProject = `-- name: ListVersionTagsByProject :many
SELECT tag_name FROM versions WHERE project_id = $1`

func (q *Queries) ListVersionTagsByProject(ctx context.Context, projectID string) ([]string, error) {
	rows, err := q.db.Query(ctx, listVersionTagsByProject, projectID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

const listVersionsByProject = `-- name: ListVersionsByProject :many
SELECT ` + versionColumns + ` FROM versions WHERE project_id = $1 ORDER BY published_at DESC, tag_name`

func (q *Queries) ListVersionsByProject(ctx context.Context, projectID string) ([]Version, error) {
	rows, err := q.db.Query(ctx, listVersionsByProject, projectID)
	if err != nil {
		return nil, err
	}
	return collectVersions(rows)
}

const listVersionsPage = `-- name: ListVersionsPage :many
SELECT ` + versionColumns + ` FROM versions
WHERE project_id = $1 AND ($2::bool OR NOT is_prerelease)
ORDER BY published_at DESC, tag_name
LIMIT $3 OFFSET $4`

type ListVersionsPageParams struct {
	ProjectID          string
	IncludePrereleases bool
	Limit              int32
	Offset             int32
}

func (q *Queries) ListVersionsPage(ctx context.Context, arg ListVersionsPageParams) ([]Version, error) {
	rows, err := q.db.Query(ctx, listVersionsPage, arg.ProjectID, arg.IncludePrereleases, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	return collectVersions(rows)
}

const countVersions = `-- name: CountVersions :one
SELECT count(*) FROM versions WHERE project_id = $1 AND ($2::bool OR NOT is_prerelease)`

type CountVersionsParams struct {
	ProjectID          string
	IncludePrereleases bool
}

func (q *Queries) CountVersions(ctx context.Context, arg CountVersionsParams) (int64, error) {
	row := q.db.QueryRow(ctx, countVersions, arg.ProjectID, arg.IncludePrereleases)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const listRecentVersionsByProjects = `-- name: ListRecentVersionsByProjects :many
SELECT ` + versionColumns + ` FROM (
    SELECT ` + versionColumns + `,
           row_number() OVER (PARTITION BY project_id ORDER BY published_at DESC, tag_name) AS rn
    FROM versions
    WHERE project_id = ANY($1::text[])
) ranked
WHERE rn <= $2
ORDER BY project_id, published_at DESC, tag_name`

type ListRecentVersionsByProjectsParams struct {
	ProjectIDs []string
	PerProject int32
}

// ListRecentVersionsByProjects returns up to PerProject newest versions of each project.
func (q *Queries) ListRecentVersionsByProjects(ctx context.Context, arg ListRecentVersionsByProjectsParams) ([]Version, error) {
	rows, err := q.db.Query(ctx, listRecentVersionsByProjects, arg.ProjectIDs, arg.PerProject)
	if err != nil {
		return nil, err
	}
	return collectVersions(rows)
}

func collectVersions(rows pgx.Rows) ([]Version, error) {
	defer rows.Close()
	var items []Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

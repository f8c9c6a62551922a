// internal/database/notifications.sql.go
package database

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const notificationColumns = `id, user_id, project_id, type, title, message, is_read, created_at`

func scanNotification(row interface{ Scan(...any) error }) (Notification, error) {
	var i Notification
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.ProjectID,
		&i.Type,
		&i.Title,
		&i.Message,
		&i.IsRead,
		&i.CreatedAt,
	)
	return i, err
}

const createNotification = `-- name: CreateNotification :one
INSERT INTO notifications (id, user_id, project_id, type, title, message)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + notificationColumns

type CreateNotificationParams struct {
	ID        string
	UserID    string
	ProjectID pgtype.Text
	Type      string
	Title     string
	Message   string
}

func (q *Queries) CreateNotification(ctx context.Context, arg CreateNotificationParams) (Notification, error) {
	row := q.db.QueryRow(ctx, createNotification,
		arg.ID,
		arg.UserID,
		arg.ProjectID,
		arg.Type,
		arg.Title,
		arg.Message,
	)
	return scanNotification(row)
}

const listNotificationsByUser = `-- name: ListNotificationsByUser :many
SELECT ` + notificationColumns + ` FROM notifications WHERE user_id = $1 ORDER BY created_at DESC, id`

func (q *Queries) ListNotificationsByUser(ctx context.Context, userID string) ([]Notification, error) {
	rows, err := q.db.Query(ctx, listNotificationsByUser, userID)
	if err != nil {
		return nil, err
	}
	return collectNotifications(rows)
}

const listNotificationsPage = `-- name: ListNotificationsPage :many
SELECT ` + notificationColumns + ` FROM notifications
WHERE user_id = $1 AND (NOT $2::bool OR NOT is_read)
ORDER BY created_at DESC, id
LIMIT $3 OFFSET $4`

type ListNotificationsPageParams struct {
	UserID     string
	UnreadOnly bool
	Limit      int32
	Offset     int32
}

func (q *Queries) ListNotificationsPage(ctx context.Context, arg ListNotificationsPageParams) ([]Notification, error) {
	rows, err := q.db.Query(ctx, listNotificationsPage, arg.UserID, arg.UnreadOnly, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	return collectNotifications(rows)
}

const countNotifications = `-- name: CountNotifications :one
SELECT count(*) FROM notifications WHERE user_id = $1 AND (NOT $2::bool OR NOT is_read)`

type CountNotificationsParams struct {
	UserID     string
	UnreadOnly bool
}

func (q *Queries) CountNotifications(ctx context.Context, arg CountNotificationsParams) (int64, error) {
	row := q.db.QueryRow(ctx, countNotifications, arg.UserID, arg.UnreadOnly)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const markNotificationsRead = `-- name: MarkNotificationsRead :execrows
UPDATE notifications SET is_read = $2 WHERE id = ANY($1::text[])`

type MarkNotificationsReadParams struct {
	IDs    []string
	IsRead bool
}

func (q *Queries) MarkNotificationsRead(ctx context.Context, arg MarkNotificationsReadParams) (int64, error) {
	result, err := q.db.Exec(ctx, markNotificationsRead, arg.IDs, arg.IsRead)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

func collectNotifications(rows pgx.Rows) ([]Notification, error) {
	defer rows.Close()
	var items []Notification
	for rows.Next() {
		i, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// internal/database/users.sql.go
package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const createUser = `-- name: CreateUser :one
INSERT INTO users (id, email, name, avatar) VALUES ($1, $2::text, $3, $4)
RETURNING id, email, name, avatar, created_at, updated_at`

type CreateUserParams struct {
	ID     string
	Email  string
	Name   pgtype.Text
	Avatar pgtype.Text
}

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (User, error) {
	row := q.db.QueryRow(ctx, createUser, arg.ID, arg.Email, arg.Name, arg.Avatar)
	var i User
	err := row.Scan(
		&i.ID,
		&i.Email,
		&i.Name,
		&i.Avatar,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const ensureUser = `-- name: EnsureUser :exec
INSERT INTO users (id) VALUES ($1)
ON CONFLICT (id) DO NOTHING`

// EnsureUser creates a bare user row for an id issued by the identity
// provider. Existing users are left untouched.
func (q *Queries) EnsureUser(ctx context.Context, id string) error {
	_, err := q.db.Exec(ctx, ensureUser, id)
	return err
}

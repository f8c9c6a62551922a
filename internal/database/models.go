// internal/database/models.go
package database

import (
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

type User struct {
	ID        string
	Email     pgtype.Text
	Name      pgtype.Text
	Avatar    pgtype.Text
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Project struct {
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
	LastChecked time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Version struct {
	ID           string
	ProjectID    string
	TagName      string
	Name         pgtype.Text
	Body         pgtype.Text
	IsPrerelease bool
	IsDraft      bool
	PublishedAt  time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Notification struct {
	ID        string
	UserID    string
	ProjectID pgtype.Text
	Type      string
	Title     string
	Message   string
	IsRead    bool
	CreatedAt time.Time
}

// internal/database/querier.go
package database

import (
	"context"
)

type Querier interface {
	AddProjectTracker(ctx context.Context, arg AddProjectTrackerParams) error
	CountNotifications(ctx context.Context, arg CountNotificationsParams) (int64, error)
	CountProjectTrackers(ctx context.Context, projectID string) (int64, error)
	CountProjectsByTracker(ctx context.Context, userID string) (int64, error)
	CountVersions(ctx context.Context, arg CountVersionsParams) (int64, error)
	CreateNotification(ctx context.Context, arg CreateNotificationParams) (Notification, error)
	CreateProject(ctx context.Context, arg CreateProjectParams) (Project, error)
	CreateUser(ctx context.Context, arg CreateUserParams) (User, error)
	CreateVersions(ctx context.Context, arg []CreateVersionsParams) ([]Version, error)
	DeleteProject(ctx context.Context, id string) (int64, error)
	EnsureUser(ctx context.Context, id string) error
	GetProjectByFullName(ctx context.Context, fullName string) (Project, error)
	GetProjectByID(ctx context.Context, id string) (Project, error)
	ListNotificationsByUser(ctx context.Context, userID string) ([]Notification, error)
	ListNotificationsPage(ctx context.Context, arg ListNotificationsPageParams) ([]Notification, error)
	ListProjectsByTracker(ctx context.Context, arg ListProjectsByTrackerParams) ([]Project, error)
	ListRecentVersionsByProjects(ctx context.Context, arg ListRecentVersionsByProjectsParams) ([]Version, error)
	ListTrackedProjects(ctx context.Context) ([]ListTrackedProjectsRow, error)
	ListVersionTagsByProject(ctx context.Context, projectID string) ([]string, error)
	ListVersionsByProject(ctx context.Context, projectID string) ([]Version, error)
	ListVersionsPage(ctx context.Context, arg ListVersionsPageParams) ([]Version, error)
	MarkNotificationsRead(ctx context.Context, arg MarkNotificationsReadParams) (int64, error)
	RemoveProjectTracker(ctx context.Context, arg RemoveProjectTrackerParams) (int64, error)
	UpdateProjectMetadata(ctx context.Context, arg UpdateProjectMetadataParams) (Project, error)
	UpdateProjectStats(ctx context.Context, arg UpdateProjectStatsParams) (int64, error)
}

var _ Querier = (*Queries)(nil)

// internal/model/models.go
package model

import (
	"time"
)

// Project is a tracked repository together with its cached metadata.
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	FullName    string    `json:"fullName"`
	Description *string   `json:"description"`
	Language    *string   `json:"language"`
	Stars       int       `json:"stars"`
	Forks       int       `json:"forks"`
	Watchers    int       `json:"watchers"`
	Avatar      *string   `json:"avatar"`
	Homepage    *string   `json:"homepage"`
	Topics      []string  `json:"topics"`
	IsPrivate   bool      `json:"isPrivate"`
	IsArchived  bool      `json:"isArchived"`
	LastChecked time.Time `json:"lastChecked"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`

	// Populated by ListTrackedProjects only.
	LatestVersion *Version `json:"latestVersion,omitempty"`
	TrackerIDs    []string `json:"-"`
}

// RepositoryMetadata represents the metadata of a GitHub repository.
type RepositoryMetadata struct {
	GithubRepoID  int64     `json:"githubRepoId"`
	Owner         string    `json:"owner"`
	Name          string    `json:"name"`
	FullName      string    `json:"fullName"`
	Description   *string   `json:"description"`
	Language      *string   `json:"language"`
	StarsCount    int       `json:"stars"`
	ForksCount    int       `json:"forks"`
	WatchersCount int       `json:"watchers"`
	AvatarURL     string    `json:"avatar"`
	Homepage      *string   `json:"homepage"`
	Topics        []string  `json:"topics"`
	Private       bool      `json:"private"`
	Archived      bool      `json:"archived"`
	RepoCreatedAt time.Time `json:"createdAt"`
	RepoUpdatedAt time.Time `json:"updatedAt"`
	PushedAt      time.Time `json:"pushedAt"`
}

// Release is one release as returned by the hosting API.
type Release struct {
	ID          int64          `json:"id"`
	TagName     string         `json:"tagName"`
	Name        *string        `json:"name"`
	Body        *string        `json:"body"`
	Prerelease  bool           `json:"prerelease"`
	Draft       bool           `json:"draft"`
	PublishedAt *time.Time     `json:"publishedAt"`
	CreatedAt   time.Time      `json:"createdAt"`
	HTMLURL     string         `json:"htmlUrl"`
	Assets      []ReleaseAsset `json:"assets"`
}

// PublishedOrCreated returns the publish timestamp, falling back to the creation
// timestamp for releases the API reports without one (drafts, mostly).
func (r Release) PublishedOrCreated() time.Time {
	if r.PublishedAt != nil && !r.PublishedAt.IsZero() {
		return *r.PublishedAt
	}
	return r.CreatedAt
}

type ReleaseAsset struct {
	Name          string `json:"name"`
	DownloadCount int    `json:"downloadCount"`
	Size          int    `json:"size"`
}

// Version is a stored release of a project. (ProjectID, TagName) is unique.
type Version struct {
	ID           string    `json:"id"`
	ProjectID    string    `json:"projectId"`
	TagName      string    `json:"tagName"`
	Name         *string   `json:"name"`
	Body         *string   `json:"body"`
	IsPrerelease bool      `json:"isPrerelease"`
	IsDraft      bool      `json:"isDraft"`
	PublishedAt  time.Time `json:"publishedAt"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type NotificationType string

const (
	NotificationNewRelease NotificationType = "new_release"
	NotificationUpdate     NotificationType = "update"
	NotificationError      NotificationType = "error"
)

// Notification is a user-facing alert.
type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"userId"`
	ProjectID *string          `json:"projectId"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	IsRead    bool             `json:"isRead"`
	CreatedAt time.Time        `json:"createdAt"`
}

// ProjectSummary is a project as shown on a user's dashboard: its metadata
// plus the few most recent versions.
type ProjectSummary struct {
	Project
	RecentVersions []Version `json:"versions"`
}

// PageRequest selects one page of a listing. Page is 1-based.
type PageRequest struct {
	Page  int
	Limit int
}

// Offset is the number of rows skipped before this page.
func (p PageRequest) Offset() int {
	return (p.Page - 1) * p.Limit
}

// HasMore reports whether rows remain after this page given the total count.
func (p PageRequest) HasMore(total int) bool {
	return p.Offset()+p.Limit < total
}

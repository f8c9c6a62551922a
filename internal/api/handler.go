// internal/api/handler.go
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	custom_errors "github-release-tracker/internal/errors"
	"github-release-tracker/internal/metrics"
	"github-release-tracker/internal/model"
	"github-release-tracker/internal/poller"
	"github-release-tracker/internal/tracking"
)

const (
	defaultPerPage = 10
	maxPerPage     = 100

	defaultListLimit = 20
	maxListLimit     = 100
)

// VersionChecker runs a sweep on demand.
type VersionChecker interface {
	RunSweep(ctx context.Context) []poller.CheckResult
}

// SchedulerStatus reports whether periodic checks are active.
type SchedulerStatus interface {
	IsActive() bool
}

// ReleaseSource reads releases straight from the hosting API.
type ReleaseSource interface {
	FetchReleases(ctx context.Context, fullName string, page, perPage int) ([]model.Release, error)
	FetchLatestRelease(ctx context.Context, fullName string) (*model.Release, error)
}

// ProjectTracker manages which users track which projects.
type ProjectTracker interface {
	Track(ctx context.Context, userID, fullName string) (*model.Project, error)
	Untrack(ctx context.Context, userID, projectID string) (bool, error)
	Refresh(ctx context.Context, projectID string) (*tracking.ProjectDetails, error)
	Get(ctx context.Context, projectID string) (*tracking.ProjectDetails, error)
}

// NotificationStore lists a user's notifications and flips their read state.
type NotificationStore interface {
	ListNotifications(ctx context.Context, userID string, unreadOnly bool, page model.PageRequest) ([]model.Notification, int, error)
	MarkNotificationsRead(ctx context.Context, ids []string, isRead bool) (int, error)
}

// Catalog reads stored projects and versions for dashboards.
type Catalog interface {
	ListProjectsByTracker(ctx context.Context, userID string, page model.PageRequest) ([]model.ProjectSummary, int, error)
	ListVersionsPage(ctx context.Context, projectID string, includePrereleases bool, page model.PageRequest) ([]model.Version, int, error)
}

// Dependencies are the services the HTTP surface delegates to.
type Dependencies struct {
	Checker       VersionChecker
	Scheduler     SchedulerStatus
	Releases      ReleaseSource
	Projects      ProjectTracker
	Catalog       Catalog
	Notifications NotificationStore
	Metrics       prometheus.Gatherer
}

// Handler is the container for API dependencies.
type Handler struct {
	deps   Dependencies
	logger *slog.Logger
}

// NewRouter creates and configures a new chi router with all API routes.
func NewRouter(deps Dependencies, logger *slog.Logger) http.Handler {
	h := &Handler{
		deps:   deps,
		logger: logger,
	}

	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.healthCheck)
	if deps.Metrics != nil {
		r.Handle("/metrics", metrics.Handler(deps.Metrics))
	}

	r.Route("/v1", func(r chi.Router) {
		// A manual sweep takes as long as it takes.
		r.Post("/check-versions", h.checkVersions)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			r.Get("/check-versions", h.checkStatus)
			r.Get("/releases", h.getReleases)
			r.Get("/releases/latest", h.getLatestRelease)
			r.Get("/projects", h.listProjects)
			r.Post("/projects", h.trackProject)
			r.Get("/projects/{id}", h.getProject)
			r.Delete("/projects/{id}", h.untrackProject)
			r.Put("/projects/{id}/refresh", h.refreshProject)
			r.Get("/versions", h.listVersions)
			r.Get("/notifications", h.getNotifications)
			r.Put("/notifications", h.markNotifications)
		})
	})

	return r
}

type checkVersionsResponse struct {
	Success             bool                 `json:"success"`
	CheckedProjects     int                  `json:"checkedProjects"`
	ProjectsWithUpdates int                  `json:"projectsWithUpdates"`
	Results             []poller.CheckResult `json:"results"`
}

type statusResponse struct {
	IsRunning bool   `json:"isRunning"`
	Message   string `json:"message"`
}

type releasesResponse struct {
	Releases []model.Release `json:"releases"`
	Page     int             `json:"page"`
	PerPage  int             `json:"perPage"`
	HasMore  bool            `json:"hasMore"`
}

type trackRequest struct {
	UserID   string `json:"userId"`
	FullName string `json:"fullName"`
}

type untrackRequest struct {
	UserID string `json:"userId"`
}

type untrackResponse struct {
	Success        bool `json:"success"`
	ProjectDeleted bool `json:"projectDeleted"`
}

type projectsResponse struct {
	Projects   []model.ProjectSummary `json:"projects"`
	TotalCount int                    `json:"totalCount"`
	HasMore    bool                   `json:"hasMore"`
	Page       int                    `json:"page"`
	Limit      int                    `json:"limit"`
}

type versionsResponse struct {
	Versions   []model.Version `json:"versions"`
	TotalCount int             `json:"totalCount"`
	HasMore    bool            `json:"hasMore"`
	Page       int             `json:"page"`
	Limit      int             `json:"limit"`
}

type notificationsResponse struct {
	Notifications []model.Notification `json:"notifications"`
	TotalCount    int                  `json:"totalCount"`
	HasMore       bool                 `json:"hasMore"`
	Page          int                  `json:"page"`
	Limit         int                  `json:"limit"`
}

type markNotificationsRequest struct {
	NotificationIDs []string `json:"notificationIds"`
	IsRead          *bool    `json:"isRead"`
}

type markNotificationsResponse struct {
	Updated int `json:"updated"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// healthCheck is a simple health endpoint.
func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// checkVersions runs a sweep and returns its per-project results.
// POST /v1/check-versions
func (h *Handler) checkVersions(w http.ResponseWriter, r *http.Request) {
	results := h.deps.Checker.RunSweep(r.Context())

	var withUpdates int
	for _, res := range results {
		if len(res.NewVersions) > 0 {
			withUpdates++
		}
	}

	respondWithJSON(w, http.StatusOK, checkVersionsResponse{
		Success:             true,
		CheckedProjects:     len(results),
		ProjectsWithUpdates: withUpdates,
		Results:             results,
	})
}

// checkStatus reports whether the periodic check is active.
// GET /v1/check-versions
func (h *Handler) checkStatus(w http.ResponseWriter, r *http.Request) {
	active := h.deps.Scheduler.IsActive()
	msg := "Periodic version checking is not running"
	if active {
		msg = "Periodic version checking is active"
	}
	respondWithJSON(w, http.StatusOK, statusResponse{IsRunning: active, Message: msg})
}

// getReleases passes a page of releases through from the hosting API.
// GET /v1/releases?fullName=owner/name&page=1&perPage=10
func (h *Handler) getReleases(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	fullName := q.Get("fullName")
	if fullName == "" {
		respondWithError(w, http.StatusBadRequest, "fullName parameter is required")
		return
	}

	page, err := intParam(q.Get("page"), 1)
	if err != nil || page < 1 {
		respondWithError(w, http.StatusBadRequest, "Invalid 'page' parameter. Must be a positive integer.")
		return
	}
	perPage, err := intParam(q.Get("perPage"), defaultPerPage)
	if err != nil || perPage < 1 || perPage > maxPerPage {
		respondWithError(w, http.StatusBadRequest, "Invalid 'perPage' parameter. Must be an integer between 1 and 100.")
		return
	}

	releases, err := h.deps.Releases.FetchReleases(r.Context(), fullName, page, perPage)
	if err != nil {
		h.respondWithDomainError(w, "Failed to fetch releases", err)
		return
	}

	respondWithJSON(w, http.StatusOK, releasesResponse{
		Releases: releases,
		Page:     page,
		PerPage:  perPage,
		HasMore:  len(releases) == perPage,
	})
}

// getLatestRelease returns the newest release, or null when there is none.
// GET /v1/releases/latest?fullName=owner/name
func (h *Handler) getLatestRelease(w http.ResponseWriter, r *http.Request) {
	fullName := r.URL.Query().Get("fullName")
	if fullName == "" {
		respondWithError(w, http.StatusBadRequest, "fullName parameter is required")
		return
	}

	release, err := h.deps.Releases.FetchLatestRelease(r.Context(), fullName)
	if err != nil {
		h.respondWithDomainError(w, "Failed to fetch latest release", err)
		return
	}
	respondWithJSON(w, http.StatusOK, release)
}

// trackProject starts tracking a repository for a user.
// POST /v1/projects
func (h *Handler) trackProject(w http.ResponseWriter, r *http.Request) {
	var req trackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.UserID == "" || req.FullName == "" {
		respondWithError(w, http.StatusBadRequest, "userId and fullName are required")
		return
	}

	project, err := h.deps.Projects.Track(r.Context(), req.UserID, req.FullName)
	if err != nil {
		h.respondWithDomainError(w, "Failed to track project", err)
		return
	}
	respondWithJSON(w, http.StatusCreated, project)
}

// getProject returns a project and its versions.
// GET /v1/projects/{id}
func (h *Handler) getProject(w http.ResponseWriter, r *http.Request) {
	details, err := h.deps.Projects.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondWithDomainError(w, "Failed to fetch project", err)
		return
	}
	respondWithJSON(w, http.StatusOK, details)
}

// untrackProject stops tracking a project for a user.
// DELETE /v1/projects/{id}
func (h *Handler) untrackProject(w http.ResponseWriter, r *http.Request) {
	var req untrackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		respondWithError(w, http.StatusBadRequest, "User ID is required")
		return
	}

	deleted, err := h.deps.Projects.Untrack(r.Context(), req.UserID, chi.URLParam(r, "id"))
	if err != nil {
		h.respondWithDomainError(w, "Failed to untrack project", err)
		return
	}
	respondWithJSON(w, http.StatusOK, untrackResponse{Success: true, ProjectDeleted: deleted})
}

// refreshProject re-fetches metadata and recent releases for a project.
// PUT /v1/projects/{id}/refresh
func (h *Handler) refreshProject(w http.ResponseWriter, r *http.Request) {
	details, err := h.deps.Projects.Refresh(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondWithDomainError(w, "Failed to refresh project", err)
		return
	}
	respondWithJSON(w, http.StatusOK, details)
}

// listProjects returns the projects a user tracks with their newest versions.
// GET /v1/projects?userId=...&page=1&limit=20
func (h *Handler) listProjects(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID := queryValue(q, "userId", "user_id")
	if userID == "" {
		respondWithError(w, http.StatusBadRequest, "User ID is required")
		return
	}
	page, ok := pageParams(w, q)
	if !ok {
		return
	}

	projects, total, err := h.deps.Catalog.ListProjectsByTracker(r.Context(), userID, page)
	if err != nil {
		h.logger.Error("Failed to list projects", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to fetch projects")
		return
	}
	respondWithJSON(w, http.StatusOK, projectsResponse{
		Projects:   projects,
		TotalCount: total,
		HasMore:    page.HasMore(total),
		Page:       page.Page,
		Limit:      page.Limit,
	})
}

// listVersions pages through a project's stored versions.
// GET /v1/versions?projectId=...&page=1&limit=20&includePrereleases=true
func (h *Handler) listVersions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	projectID := queryValue(q, "projectId", "project_id")
	if projectID == "" {
		respondWithError(w, http.StatusBadRequest, "Project ID is required")
		return
	}
	page, ok := pageParams(w, q)
	if !ok {
		return
	}
	includePrereleases := queryValue(q, "includePrereleases", "include_prereleases") == "true"

	versions, total, err := h.deps.Catalog.ListVersionsPage(r.Context(), projectID, includePrereleases, page)
	if err != nil {
		h.logger.Error("Failed to list versions", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to fetch versions")
		return
	}
	respondWithJSON(w, http.StatusOK, versionsResponse{
		Versions:   versions,
		TotalCount: total,
		HasMore:    page.HasMore(total),
		Page:       page.Page,
		Limit:      page.Limit,
	})
}

// getNotifications lists a user's notifications, newest first.
// GET /v1/notifications?userId=...&page=1&limit=20&unreadOnly=true
func (h *Handler) getNotifications(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID := queryValue(q, "userId", "user_id")
	if userID == "" {
		respondWithError(w, http.StatusBadRequest, "User ID is required")
		return
	}
	page, ok := pageParams(w, q)
	if !ok {
		return
	}
	unreadOnly := queryValue(q, "unreadOnly", "unread_only") == "true"

	notifications, total, err := h.deps.Notifications.ListNotifications(r.Context(), userID, unreadOnly, page)
	if err != nil {
		h.logger.Error("Failed to list notifications", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to fetch notifications")
		return
	}
	respondWithJSON(w, http.StatusOK, notificationsResponse{
		Notifications: notifications,
		TotalCount:    total,
		HasMore:       page.HasMore(total),
		Page:          page.Page,
		Limit:         page.Limit,
	})
}

// markNotifications sets the read flag on a set of notifications. isRead
// defaults to true when omitted.
// PUT /v1/notifications
func (h *Handler) markNotifications(w http.ResponseWriter, r *http.Request) {
	var req markNotificationsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.NotificationIDs == nil {
		respondWithError(w, http.StatusBadRequest, "Notification IDs array is required")
		return
	}
	isRead := true
	if req.IsRead != nil {
		isRead = *req.IsRead
	}

	updated, err := h.deps.Notifications.MarkNotificationsRead(r.Context(), req.NotificationIDs, isRead)
	if err != nil {
		h.logger.Error("Failed to update notifications", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to update notifications")
		return
	}
	respondWithJSON(w, http.StatusOK, markNotificationsResponse{Updated: updated})
}

// respondWithDomainError maps provider and store errors to HTTP statuses.
func (h *Handler) respondWithDomainError(w http.ResponseWriter, msg string, err error) {
	var formatErr *custom_errors.ErrInvalidRepoFormat
	switch {
	case errors.As(err, &formatErr):
		respondWithError(w, http.StatusBadRequest, formatErr.Error())
	case errors.Is(err, custom_errors.ErrProjectNotFound):
		respondWithError(w, http.StatusNotFound, "Project not found")
	case errors.Is(err, custom_errors.ErrProjectExists):
		respondWithError(w, http.StatusConflict, "Project already exists")
	case errors.Is(err, custom_errors.ErrNotFound):
		respondWithError(w, http.StatusNotFound, "Repository not found")
	case errors.Is(err, custom_errors.ErrRateLimited):
		respondWithJSON(w, http.StatusTooManyRequests, errorResponse{
			Error:   "GitHub API rate limit exceeded. Please try again later or add a GitHub token for higher limits.",
			Details: "Without authentication, GitHub allows only 60 requests per hour.",
		})
	case errors.Is(err, custom_errors.ErrNetwork):
		respondWithJSON(w, http.StatusServiceUnavailable, errorResponse{
			Error:   "Network error while contacting GitHub.",
			Details: err.Error(),
		})
	case errors.Is(err, custom_errors.ErrAuthFailed):
		respondWithJSON(w, http.StatusBadGateway, errorResponse{
			Error:   "GitHub rejected the configured credentials.",
			Details: err.Error(),
		})
	default:
		h.logger.Error(msg, "error", err)
		respondWithError(w, http.StatusInternalServerError, msg)
	}
}

// pageParams reads page and limit, writing a 400 and returning false when
// either is malformed.
func pageParams(w http.ResponseWriter, q url.Values) (model.PageRequest, bool) {
	page, err := intParam(q.Get("page"), 1)
	if err != nil || page < 1 {
		respondWithError(w, http.StatusBadRequest, "Invalid 'page' parameter. Must be a positive integer.")
		return model.PageRequest{}, false
	}
	limit, err := intParam(q.Get("limit"), defaultListLimit)
	if err != nil || limit < 1 || limit > maxListLimit {
		respondWithError(w, http.StatusBadRequest, "Invalid 'limit' parameter. Must be an integer between 1 and 100.")
		return model.PageRequest{}, false
	}
	return model.PageRequest{Page: page, Limit: limit}, true
}

// queryValue returns the first non-empty value among the given parameter
// names. The snake_case spellings are accepted for older dashboard clients.
func queryValue(q url.Values, names ...string) string {
	for _, name := range names {
		if v := q.Get(name); v != "" {
			return v
		}
	}
	return ""
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, errorResponse{Error: message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

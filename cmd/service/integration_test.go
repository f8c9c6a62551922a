//go:build integration

// cmd/service/integration_test.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github-release-tracker/internal/app"
	"github-release-tracker/internal/config"
	"github-release-tracker/internal/database"
	"github-release-tracker/internal/model"
)

const (
	releaseV1 = `{"id": 1, "tag_name": "v1.0.0", "name": "One", "published_at": "2024-01-01T00:00:00Z", "created_at": "2024-01-01T00:00:00Z"}`
	releaseV2 = `{"id": 2, "tag_name": "v1.1.0", "name": "Two", "published_at": null, "created_at": "2024-02-01T00:00:00Z"}`
)

func TestVersionCheck_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	dbpool, _ := database.SetupTestDB(t)

	// Setup a mock GitHub API server; the upstream gains v1.1.0 once published is set.
	var published atomic.Bool
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v3/repos/test-owner/test-repo":
			w.WriteHeader(http.StatusOK)
			fmt.Fprint(w, `{"id": 123, "owner": {"login": "test-owner"}, "name": "test-repo", "full_name": "test-owner/test-repo", "stargazers_count": 10}`)
		case "/api/v3/repos/test-owner/test-repo/releases":
			w.WriteHeader(http.StatusOK)
			if published.Load() {
				fmt.Fprintf(w, "[%s, %s]", releaseV2, releaseV1)
				return
			}
			fmt.Fprintf(w, "[%s]", releaseV1)
		default:
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"message": "Not Found"}`)
		}
	})
	github := httptest.NewServer(handler)
	defer github.Close()

	cfg := &config.Config{
		GithubBaseURL:           github.URL + "/",
		GithubRequestsPerSecond: 100,
		ReleasesPerCheck:        10,
		InitialReleases:         20,
		RefreshReleases:         50,
		PollConcurrency:         2,
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	application, err := app.New(cfg, dbpool, logger)
	require.NoError(t, err)

	api := httptest.NewServer(application.Router())
	defer api.Close()

	q := database.New(dbpool)
	known, err := q.CreateUser(ctx, database.CreateUserParams{ID: uuid.NewString(), Email: uuid.NewString() + "@example.com"})
	require.NoError(t, err)
	// The second user only exists at the identity provider until they track something.
	users := []string{known.ID, uuid.NewString()}

	// --- ACT: both users track the repository ---
	var project model.Project
	for _, userID := range users {
		body := fmt.Sprintf(`{"userId": %q, "fullName": "test-owner/test-repo"}`, userID)
		resp, err := http.Post(api.URL+"/v1/projects", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&project))
		resp.Body.Close()
	}

	tags, err := q.ListVersionTagsByProject(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"v1.0.0"}, tags, "tracking seeds the existing release")

	// --- ACT: upstream publishes a release, then a manual check runs ---
	published.Store(true)
	checkVersions := func() map[string]any {
		resp, err := http.Post(api.URL+"/v1/check-versions", "application/json", nil)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var out map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		return out
	}

	first := checkVersions()

	// --- ASSERT ---
	assert.Equal(t, true, first["success"])
	assert.Equal(t, float64(1), first["projectsWithUpdates"])

	versions, err := q.ListVersionsByProject(ctx, project.ID)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, "v1.1.0", versions[0].TagName)
	assert.Equal(t, "2024-02-01T00:00:00Z", versions[0].PublishedAt.UTC().Format("2006-01-02T15:04:05Z"))

	for _, userID := range users {
		notifications, err := q.ListNotificationsByUser(ctx, userID)
		require.NoError(t, err)
		require.Len(t, notifications, 1)
		assert.Equal(t, "New release: v1.1.0", notifications[0].Title)
		assert.Equal(t, string(model.NotificationNewRelease), notifications[0].Type)
	}

	stored, err := q.GetProjectByID(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, int32(10), stored.Stars)

	// The dashboard routes see the same state.
	var listed struct {
		Projects []struct {
			ID       string `json:"id"`
			Versions []struct {
				TagName string `json:"tagName"`
			} `json:"versions"`
		} `json:"projects"`
		TotalCount int `json:"totalCount"`
	}
	getJSON(t, api.URL+"/v1/projects?userId="+users[1], &listed)
	assert.Equal(t, 1, listed.TotalCount)
	require.Len(t, listed.Projects, 1)
	require.Len(t, listed.Projects[0].Versions, 2)
	assert.Equal(t, "v1.1.0", listed.Projects[0].Versions[0].TagName)

	var inbox struct {
		Notifications []model.Notification `json:"notifications"`
	}
	getJSON(t, api.URL+"/v1/notifications?userId="+users[1]+"&unreadOnly=true", &inbox)
	require.Len(t, inbox.Notifications, 1)

	body := fmt.Sprintf(`{"notificationIds": [%q]}`, inbox.Notifications[0].ID)
	req, err := http.NewRequest(http.MethodPut, api.URL+"/v1/notifications", strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	getJSON(t, api.URL+"/v1/notifications?userId="+users[1]+"&unreadOnly=true", &inbox)
	assert.Empty(t, inbox.Notifications)

	// A second check finds nothing new.
	second := checkVersions()
	assert.Equal(t, float64(0), second["checkedProjects"])
	for _, userID := range users {
		notifications, err := q.ListNotificationsByUser(ctx, userID)
		require.NoError(t, err)
		assert.Len(t, notifications, 1)
	}
}

func getJSON(t *testing.T, url string, out any) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

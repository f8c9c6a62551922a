// internal/github/client.go
package github

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/go-github/v62/github"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	custom_errors "github-release-tracker/internal/errors"
	"github-release-tracker/internal/model"
)

const (
	// Attempts per request when the API answers with a 5xx.
	maxRetries = 3

	defaultRequestTimeout = 10 * time.Second
	defaultRetryInterval  = 500 * time.Millisecond
)

// ClientConfig configures a Client.
type ClientConfig struct {
	// Token is optional. Unauthenticated clients get a much lower rate limit.
	Token string
	// BaseURL points the client at a GitHub Enterprise (or test) API root.
	BaseURL string
	// RequestsPerSecond paces outgoing requests. Zero disables pacing.
	RequestsPerSecond float64
}

// Client is a wrapper around the go-github client.
type Client struct {
	gh            *github.Client
	logger        *slog.Logger
	retryInterval time.Duration
}

// NewClient creates and configures a new Client instance.
func NewClient(cfg ClientConfig, logger *slog.Logger) (*Client, error) {
	var transport http.RoundTripper = http.DefaultTransport
	if cfg.RequestsPerSecond > 0 {
		transport = &pacedTransport{
			base:    transport,
			limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		}
	}
	if cfg.Token != "" {
		transport = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token}),
			Base:   transport,
		}
	}

	gh := github.NewClient(&http.Client{Transport: transport, Timeout: defaultRequestTimeout})
	if cfg.BaseURL != "" {
		var err error
		gh, err = gh.WithEnterpriseURLs(cfg.BaseURL, cfg.BaseURL)
		if err != nil {
			return nil, err
		}
	}

	return &Client{
		gh:            gh,
		logger:        logger,
		retryInterval: defaultRetryInterval,
	}, nil
}

// FetchMetadata fetches repository details and translates them to our internal model.
func (c *Client) FetchMetadata(ctx context.Context, fullName string) (*model.RepositoryMetadata, error) {
	id, err := model.ParseRepoIdentifier(fullName)
	if err != nil {
		return nil, err
	}

	repo, err := withRetry(ctx, c, func() (*github.Repository, error) {
		repo, _, err := c.gh.Repositories.Get(ctx, id.Owner, id.Name)
		return repo, err
	})
	if err != nil {
		return nil, classify("get repository", fullName, err)
	}
	return toInternalMetadata(repo), nil
}

// FetchReleases fetches one page of releases, newest first as the API orders them.
func (c *Client) FetchReleases(ctx context.Context, fullName string, page, perPage int) ([]model.Release, error) {
	id, err := model.ParseRepoIdentifier(fullName)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("Fetching releases page", "repo", fullName, "page", page, "per_page", perPage)

	opts := &github.ListOptions{Page: page, PerPage: perPage}
	releases, err := withRetry(ctx, c, func() ([]*github.RepositoryRelease, error) {
		releases, _, err := c.gh.Repositories.ListReleases(ctx, id.Owner, id.Name, opts)
		return releases, err
	})
	if err != nil {
		return nil, classify("list releases", fullName, err)
	}

	out := make([]model.Release, 0, len(releases))
	for _, r := range releases {
		out = append(out, toInternalRelease(r))
	}
	return out, nil
}

// FetchLatestRelease returns the most recent published release, or nil when the
// repository has none.
func (c *Client) FetchLatestRelease(ctx context.Context, fullName string) (*model.Release, error) {
	id, err := model.ParseRepoIdentifier(fullName)
	if err != nil {
		return nil, err
	}

	release, err := withRetry(ctx, c, func() (*github.RepositoryRelease, error) {
		release, _, err := c.gh.Repositories.GetLatestRelease(ctx, id.Owner, id.Name)
		return release, err
	})
	if err != nil {
		classified := classify("get latest release", fullName, err)
		if errors.Is(classified, custom_errors.ErrNotFound) {
			return nil, nil
		}
		return nil, classified
	}

	r := toInternalRelease(release)
	return &r, nil
}

// withRetry retries server errors with exponential backoff. Every other failure,
// rate limiting included, is returned immediately: the next sweep is the retry.
func withRetry[T any](ctx context.Context, c *Client, fn func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryInterval

	return backoff.Retry[T](ctx, func() (T, error) {
		v, err := fn()
		if err != nil && !isServerError(err) {
			return v, backoff.Permanent(err)
		}
		if err != nil {
			c.logger.Warn("GitHub API server error, retrying", "error", err)
		}
		return v, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(maxRetries))
}

func isServerError(err error) bool {
	var respErr *github.ErrorResponse
	return errors.As(err, &respErr) && respErr.Response != nil && respErr.Response.StatusCode >= http.StatusInternalServerError
}

// classify maps go-github failures onto the provider error taxonomy.
func classify(op, repo string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	kind := custom_errors.KindUnknown

	var rateErr *github.RateLimitError
	var abuseErr *github.AbuseRateLimitError
	var respErr *github.ErrorResponse
	var urlErr *url.Error
	var netErr net.Error

	switch {
	case errors.As(err, &rateErr), errors.As(err, &abuseErr):
		kind = custom_errors.KindRateLimited
	case errors.As(err, &respErr) && respErr.Response != nil:
		switch code := respErr.Response.StatusCode; {
		case code == http.StatusNotFound:
			kind = custom_errors.KindNotFound
		case code == http.StatusTooManyRequests:
			kind = custom_errors.KindRateLimited
		case code == http.StatusUnauthorized, code == http.StatusForbidden:
			kind = custom_errors.KindAuthFailed
		case code >= http.StatusInternalServerError:
			kind = custom_errors.KindNetwork
		}
	case errors.As(err, &urlErr), errors.As(err, &netErr):
		kind = custom_errors.KindNetwork
	}

	return &custom_errors.ProviderError{Kind: kind, Op: op, Repo: repo, Err: err}
}

// pacedTransport spaces requests out so a sweep over many projects stays under the API quota.
type pacedTransport struct {
	base    http.RoundTripper
	limiter *rate.Limiter
}

func (t *pacedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.base.RoundTrip(req)
}

// toInternalMetadata translates a github.Repository object to our internal model.
func toInternalMetadata(r *github.Repository) *model.RepositoryMetadata {
	return &model.RepositoryMetadata{
		GithubRepoID:  r.GetID(),
		Owner:         r.GetOwner().GetLogin(),
		Name:          r.GetName(),
		FullName:      r.GetFullName(),
		Description:   r.Description,
		Language:      r.Language,
		StarsCount:    r.GetStargazersCount(),
		ForksCount:    r.GetForksCount(),
		WatchersCount: r.GetWatchersCount(),
		AvatarURL:     r.GetOwner().GetAvatarURL(),
		Homepage:      r.Homepage,
		Topics:        r.Topics,
		Private:       r.GetPrivate(),
		Archived:      r.GetArchived(),
		RepoCreatedAt: r.GetCreatedAt().Time,
		RepoUpdatedAt: r.GetUpdatedAt().Time,
		PushedAt:      r.GetPushedAt().Time,
	}
}

// toInternalRelease translates a github.RepositoryRelease object to our internal model.
func toInternalRelease(r *github.RepositoryRelease) model.Release {
	release := model.Release{
		ID:         r.GetID(),
		TagName:    r.GetTagName(),
		Name:       r.Name,
		Body:       r.Body,
		Prerelease: r.GetPrerelease(),
		Draft:      r.GetDraft(),
		CreatedAt:  r.GetCreatedAt().Time,
		HTMLURL:    r.GetHTMLURL(),
	}
	if r.PublishedAt != nil {
		published := r.PublishedAt.Time
		release.PublishedAt = &published
	}
	for _, a := range r.Assets {
		release.Assets = append(release.Assets, model.ReleaseAsset{
			Name:          a.GetName(),
			DownloadCount: a.GetDownloadCount(),
			Size:          a.GetSize(),
		})
	}
	return release
}

// internal/errors/errors.go
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrInvalidRepoFormat is returned when a repository full name is not in 'owner/name' format.
type ErrInvalidRepoFormat struct {
	Repo string
}

func (e *ErrInvalidRepoFormat) Error() string {
	return fmt.Sprintf("invalid repository format: %q, expected 'owner/name'", e.Repo)
}

// ErrProjectNotFound is returned by the store when a project no longer exists,
// typically because its last tracker removed it while a sweep was running.
var ErrProjectNotFound = stderrors.New("project not found")

// ErrProjectExists is returned by the store when a project with the same full
// name was created first by someone else.
var ErrProjectExists = stderrors.New("project already exists")

// Kind classifies a failure reported by the repository data provider.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindRateLimited
	KindAuthFailed
	KindNetwork
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindRateLimited:
		return "rate_limited"
	case KindAuthFailed:
		return "auth_failed"
	case KindNetwork:
		return "network"
	default:
		return "unknown"
	}
}

// Transient reports whether a later attempt may succeed without intervention.
func (k Kind) Transient() bool {
	return k == KindRateLimited || k == KindNetwork
}

// Sentinels matched by ProviderError.Is, so callers can write errors.Is(err, ErrRateLimited).
var (
	ErrNotFound    = stderrors.New("repository not found")
	ErrRateLimited = stderrors.New("api rate limit exceeded")
	ErrAuthFailed  = stderrors.New("api authentication failed")
	ErrNetwork     = stderrors.New("network error")
)

// ProviderError wraps an error returned by the hosting API with its classification.
type ProviderError struct {
	Kind Kind
	Op   string
	Repo string
	Err  error
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s: %s", e.Op, e.Repo, e.Kind)
	}
	return fmt.Sprintf("%s %s: %s: %v", e.Op, e.Repo, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func (e *ProviderError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrRateLimited:
		return e.Kind == KindRateLimited
	case ErrAuthFailed:
		return e.Kind == KindAuthFailed
	case ErrNetwork:
		return e.Kind == KindNetwork
	}
	return false
}

// KindOf returns the provider classification carried by err, or KindUnknown.
func KindOf(err error) Kind {
	var pe *ProviderError
	if stderrors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnknown
}

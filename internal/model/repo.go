// internal/model/repo.go
package model

import (
	"strings"

	custom_errors "github-release-tracker/internal/errors"
)

// RepoIdentifier holds the owner and name of a repository.
type RepoIdentifier struct {
	Owner string
	Name  string
}

func (r RepoIdentifier) String() string {
	return r.Owner + "/" + r.Name
}

// ParseRepoIdentifier splits an 'owner/name' full name.
func ParseRepoIdentifier(fullName string) (RepoIdentifier, error) {
	parts := strings.Split(fullName, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return RepoIdentifier{}, &custom_errors.ErrInvalidRepoFormat{Repo: fullName}
	}
	return RepoIdentifier{Owner: parts[0], Name: parts[1]}, nil
}

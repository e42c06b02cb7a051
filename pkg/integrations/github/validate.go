package github

import (
	"regexp"
	"strings"

	"github.com/matzehuels/pkgpulse/pkg/errors"
)

var (
	// Usernames and orgs: 1-39 alphanumerics or hyphens, no leading hyphen.
	validOwner = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9-]{0,38}$`)
	// Repository names: 1-100 alphanumerics, hyphens, underscores or dots.
	validRepo = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,100}$`)
)

// ValidateOwner validates a GitHub username or organization name.
func ValidateOwner(owner string) error {
	if owner == "" {
		return errors.New(errors.ErrCodeInvalidProject, "owner is required")
	}
	if !validOwner.MatchString(owner) {
		return errors.New(errors.ErrCodeInvalidProject, "invalid owner %q: must be 1-39 alphanumeric characters or hyphens, cannot start with hyphen", owner)
	}
	return nil
}

// ValidateRepo validates a GitHub repository name.
func ValidateRepo(repo string) error {
	if repo == "" {
		return errors.New(errors.ErrCodeInvalidProject, "repo is required")
	}
	if repo == "." || repo == ".." || !validRepo.MatchString(repo) {
		return errors.New(errors.ErrCodeInvalidProject, "invalid repo %q: must be 1-100 alphanumeric characters, hyphens, underscores, or dots", repo)
	}
	return nil
}

// ParseRepoRef parses an "owner/repo" project reference and validates both
// parts. The returned error carries the INVALID_PROJECT code.
func ParseRepoRef(ref string) (owner, repo string, err error) {
	owner, repo, ok := strings.Cut(strings.TrimSpace(ref), "/")
	if !ok {
		return "", "", errors.New(errors.ErrCodeInvalidProject, "invalid project %q: use owner/repo", ref)
	}
	if err := ValidateOwner(owner); err != nil {
		return "", "", err
	}
	if err := ValidateRepo(repo); err != nil {
		return "", "", err
	}
	return owner, repo, nil
}

// Package scanning contains the domain model for repository scans: repository
// references, fetched file artifacts, findings, scan results, and the error
// taxonomy the transport layer maps onto HTTP statuses.
package scanning

import (
	"encoding/json"
	"net/url"
	"strings"
)

// Host is the hosting provider domain accepted by the resolver.
const Host = "github.com"

// RepoReference identifies a remote repository by owner, name, and an optional
// ref (branch, tag, or commit). It is immutable once constructed; two inputs
// that differ only by trailing slash, ".git" suffix, or casing of the host
// resolve to equal references.
type RepoReference struct {
	owner string
	name  string
	ref   string
}

// NewRepoReference creates a reference from already-validated parts. Callers
// outside tests should prefer Resolve.
func NewRepoReference(owner, name, ref string) RepoReference {
	return RepoReference{owner: owner, name: name, ref: ref}
}

// Owner returns the repository owner (user or organization).
func (r RepoReference) Owner() string { return r.owner }

// Name returns the repository name with any ".git" suffix stripped.
func (r RepoReference) Name() string { return r.name }

// Ref returns the requested branch, tag, or commit, or "" for the default branch.
func (r RepoReference) Ref() string { return r.ref }

// FullName returns the "owner/name" form used in log output and API paths.
func (r RepoReference) FullName() string { return r.owner + "/" + r.name }

// URL returns the canonical HTTPS URL for the repository.
func (r RepoReference) URL() string { return "https://" + Host + "/" + r.FullName() }

// MarshalJSON renders the reference as its component parts.
func (r RepoReference) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Owner string `json:"owner"`
		Name  string `json:"name"`
		Ref   string `json:"ref,omitempty"`
	}{Owner: r.owner, Name: r.name, Ref: r.ref})
}

// Resolve parses a repository locator string into a RepoReference. It accepts
// only URLs on the expected hosting domain with a /owner/name[/tree/ref] path.
// Resolve is pure and total: any input that does not match yields nil, never
// an error.
func Resolve(input string) *RepoReference {
	input = strings.TrimSpace(input)
	if input == "" || strings.Contains(input, "..") {
		return nil
	}

	u, err := url.Parse(input)
	if err != nil {
		return nil
	}

	switch u.Scheme {
	case "http", "https":
	default:
		return nil
	}

	host := strings.ToLower(u.Hostname())
	if host != Host && host != "www."+Host {
		return nil
	}

	path := strings.Trim(u.Path, "/")
	if path == "" {
		return nil
	}

	segments := strings.Split(path, "/")
	if len(segments) < 2 {
		return nil
	}

	owner := segments[0]
	name := strings.TrimSuffix(segments[1], ".git")
	if owner == "" || name == "" {
		return nil
	}

	var ref string
	if len(segments) > 2 {
		// Only the /tree/<ref> form carries a usable ref. Anything else
		// (blob, issues, pulls, ...) does not locate a scannable tree.
		if segments[2] != "tree" || len(segments) < 4 {
			return nil
		}
		ref = strings.Join(segments[3:], "/")
		if ref == "" {
			return nil
		}
	}

	return &RepoReference{owner: owner, name: name, ref: ref}
}

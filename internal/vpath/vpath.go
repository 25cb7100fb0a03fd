// Package vpath maps the virtual filesystem onto repositories.
//
// The virtual root lists the active user's repositories; the first path
// segment names a repository and the rest is a path inside it.
package vpath

import "strings"

const Root = "/"

// RepoAddress locates a virtual path on the remote. An empty Repo is the
// virtual root.
type RepoAddress struct {
	Owner string
	Repo  string
	Path  string
}

// IsRoot reports whether the address is the repository listing.
func (a RepoAddress) IsRoot() bool {
	return a.Repo == ""
}

// IsRepoRoot reports whether the address is the top of a repository.
func (a RepoAddress) IsRepoRoot() bool {
	return a.Repo != "" && a.Path == ""
}

// String renders the address back as a virtual path.
func (a RepoAddress) String() string {
	if a.IsRoot() {
		return Root
	}
	if a.Path == "" {
		return Root + a.Repo
	}
	return Root + a.Repo + "/" + a.Path
}

// Join is the inverse of Parse for any user.
func Join(a RepoAddress) string {
	return a.String()
}

// Resolve turns input into an absolute virtual path relative to current.
// It never fails: ".." at the root stays at the root.
func Resolve(current, input string) string {
	joined := input
	if !strings.HasPrefix(input, "/") {
		joined = current + "/" + input
	}

	var kept []string
	for _, seg := range strings.Split(joined, "/") {
		switch seg {
		case "", ".":
		case "..":
			if len(kept) > 0 {
				kept = kept[:len(kept)-1]
			}
		default:
			kept = append(kept, seg)
		}
	}
	return Root + strings.Join(kept, "/")
}

// Parse splits an absolute virtual path into owner, repository and
// internal path. The owner is always user.
func Parse(user, p string) RepoAddress {
	var segs []string
	for _, seg := range strings.Split(strings.Trim(p, "/"), "/") {
		if seg != "" {
			segs = append(segs, seg)
		}
	}

	addr := RepoAddress{Owner: user}
	if len(segs) == 0 {
		return addr
	}
	addr.Repo = segs[0]
	addr.Path = strings.Join(segs[1:], "/")
	return addr
}

// Base returns the last segment of p, or "/" for the root.
func Base(p string) string {
	p = strings.TrimRight(p, "/")
	if p == "" {
		return Root
	}
	return p[strings.LastIndex(p, "/")+1:]
}

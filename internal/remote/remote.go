// Package remote defines what the core needs from a repository backend.
//
// The read side (Reader) captures version tokens before staging and anchors
// new trees at commit time. The write side (Writer) is the four-step object
// protocol: trees and commits are created, then a branch ref is advanced.
package remote

import (
	"context"
	"regexp"

	"ghos/internal/errors"
)

const (
	ModeFile = "100644"
	TypeBlob = "blob"
)

type EntryType string

const (
	EntryFile EntryType = "file"
	EntryDir  EntryType = "dir"
)

// File is a remote file with decoded content.
type File struct {
	Path    string `json:"path"`
	Name    string `json:"name"`
	Content string `json:"content"`
	SHA     string `json:"sha"`
	Size    int64  `json:"size"`
}

// Entry is one child of a remote directory.
type Entry struct {
	Name string    `json:"name"`
	Path string    `json:"path"`
	Type EntryType `json:"type"`
	Size int64     `json:"size"`
	SHA  string    `json:"sha"`
}

// Repository is one item of the virtual root listing.
type Repository struct {
	Name          string `json:"name"`
	Description   string `json:"description"`
	DefaultBranch string `json:"default_branch"`
	Language      string `json:"language"`
	Stars         int    `json:"stars"`
	Forks         int    `json:"forks"`
}

type Branch struct {
	Name      string `json:"name"`
	SHA       string `json:"sha"`
	Protected bool   `json:"protected"`
}

// TreeEntry is submitted to CreateTree. Delete entries carry no content
// and mark the path for removal from the base tree.
type TreeEntry struct {
	Path    string
	Mode    string
	Type    string
	Content string
	Delete  bool
}

// BlobEntry returns a file entry carrying raw content.
func BlobEntry(path, content string) TreeEntry {
	return TreeEntry{Path: path, Mode: ModeFile, Type: TypeBlob, Content: content}
}

// DeleteEntry returns an entry that removes path.
func DeleteEntry(path string) TreeEntry {
	return TreeEntry{Path: path, Mode: ModeFile, Type: TypeBlob, Delete: true}
}

type CommitRequest struct {
	Message string
	Tree    string
	Parents []string
}

type Reader interface {
	// GetFile fails with NotFound when path is absent and NotAFile when
	// it is a directory.
	GetFile(ctx context.Context, owner, repo, path string) (*File, error)
	ListDirectory(ctx context.Context, owner, repo, path string) ([]Entry, error)
	ListRepositories(ctx context.Context, owner string) ([]Repository, error)
	GetBranchHeadSHA(ctx context.Context, owner, repo, branch string) (string, error)
	GetTreeSHAForCommit(ctx context.Context, owner, repo, commitSHA string) (string, error)
}

type Writer interface {
	// CreateTree merges entries into baseTreeSHA and returns the new tree.
	CreateTree(ctx context.Context, owner, repo, baseTreeSHA string, entries []TreeEntry) (string, error)
	CreateCommit(ctx context.Context, owner, repo string, req CommitRequest) (string, error)
	// UpdateRef moves refs/heads/branch to sha without forcing. A branch
	// that moved concurrently yields a StaleVersion error.
	UpdateRef(ctx context.Context, owner, repo, branch, sha string) error
}

type Branches interface {
	GetRepository(ctx context.Context, owner, repo string) (*Repository, error)
	ListBranches(ctx context.Context, owner, repo string) ([]Branch, error)
	CreateBranch(ctx context.Context, owner, repo, branch, fromSHA string) error
	DeleteBranch(ctx context.Context, owner, repo, branch string) error
}

// Invalidator drops cached reads for a repository after it changed.
type Invalidator interface {
	Invalidate(owner, repo string)
}

// Backend is everything the CLI needs from one remote.
type Backend interface {
	Reader
	Writer
	Branches
	Invalidator
}

var branchName = regexp.MustCompile(`^[a-zA-Z0-9._/-]+$`)

// ValidateBranchName rejects names the ref API would refuse.
func ValidateBranchName(name string) error {
	if !branchName.MatchString(name) {
		return errors.ValidationError("invalid branch name: "+name, name)
	}
	return nil
}

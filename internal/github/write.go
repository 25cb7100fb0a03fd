package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"ghos/internal/errors"
	"ghos/internal/remote"

	"go.uber.org/zap"
)

// treeEntry serializes a remote.TreeEntry. Deletions must send an explicit
// "sha": null and no content.
type treeEntry remote.TreeEntry

func (e treeEntry) MarshalJSON() ([]byte, error) {
	if e.Delete {
		return json.Marshal(struct {
			Path string  `json:"path"`
			Mode string  `json:"mode"`
			Type string  `json:"type"`
			SHA  *string `json:"sha"`
		}{e.Path, e.Mode, e.Type, nil})
	}
	return json.Marshal(struct {
		Path    string `json:"path"`
		Mode    string `json:"mode"`
		Type    string `json:"type"`
		Content string `json:"content"`
	}{e.Path, e.Mode, e.Type, e.Content})
}

type createTreeRequest struct {
	BaseTree string      `json:"base_tree,omitempty"`
	Tree     []treeEntry `json:"tree"`
}

type createCommitRequest struct {
	Message string   `json:"message"`
	Tree    string   `json:"tree"`
	Parents []string `json:"parents"`
}

type updateRefRequest struct {
	SHA   string `json:"sha"`
	Force bool   `json:"force"`
}

type createRefRequest struct {
	Ref string `json:"ref"`
	SHA string `json:"sha"`
}

type shaResponse struct {
	SHA string `json:"sha"`
}

type branchResponse struct {
	Name   string `json:"name"`
	Commit struct {
		SHA string `json:"sha"`
	} `json:"commit"`
	Protected bool `json:"protected"`
}

func (c *Client) CreateTree(ctx context.Context, owner, repo, baseTreeSHA string, entries []remote.TreeEntry) (string, error) {
	req := createTreeRequest{BaseTree: baseTreeSHA, Tree: make([]treeEntry, len(entries))}
	for i, e := range entries {
		req.Tree[i] = treeEntry(e)
	}

	var resp shaResponse
	if err := c.do(ctx, http.MethodPost, repoPath(owner, repo, "git/trees"), req, &resp); err != nil {
		return "", err
	}
	return resp.SHA, nil
}

func (c *Client) CreateCommit(ctx context.Context, owner, repo string, commit remote.CommitRequest) (string, error) {
	parents := commit.Parents
	if parents == nil {
		parents = []string{}
	}
	req := createCommitRequest{Message: commit.Message, Tree: commit.Tree, Parents: parents}

	var resp shaResponse
	if err := c.do(ctx, http.MethodPost, repoPath(owner, repo, "git/commits"), req, &resp); err != nil {
		return "", err
	}
	return resp.SHA, nil
}

// UpdateRef never forces. GitHub answers 422 for a non-fast-forward and 409
// for a concurrent ref change; both mean the staged base is stale.
func (c *Client) UpdateRef(ctx context.Context, owner, repo, branch, sha string) error {
	err := c.do(ctx, http.MethodPatch, repoPath(owner, repo, "git/refs/heads", escapePath(branch)), updateRefRequest{SHA: sha}, nil)
	switch statusCode(err) {
	case 0:
		if err != nil {
			return err
		}
		c.cache.InvalidateKind("branches", owner, repo)
		return nil
	case http.StatusConflict, http.StatusUnprocessableEntity:
		c.logger.Debug("ref update rejected", zap.String("branch", branch), zap.Error(err))
		return errors.StaleVersion(fmt.Sprintf("branch %s moved since the commit was prepared", branch), err.(*errors.Error).Details)
	default:
		return err
	}
}

func (c *Client) ListBranches(ctx context.Context, owner, repo string) ([]remote.Branch, error) {
	return cached(c.cache, cacheKey("branches", owner, repo), func() ([]remote.Branch, error) {
		var resp []branchResponse
		path := repoPath(owner, repo, fmt.Sprintf("branches?per_page=%d", c.perPage))
		if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
			return nil, err
		}
		branches := make([]remote.Branch, 0, len(resp))
		for _, b := range resp {
			branches = append(branches, remote.Branch{Name: b.Name, SHA: b.Commit.SHA, Protected: b.Protected})
		}
		return branches, nil
	})
}

func (c *Client) CreateBranch(ctx context.Context, owner, repo, branch, fromSHA string) error {
	if err := remote.ValidateBranchName(branch); err != nil {
		return err
	}
	req := createRefRequest{Ref: "refs/heads/" + branch, SHA: fromSHA}
	err := c.do(ctx, http.MethodPost, repoPath(owner, repo, "git/refs"), req, nil)
	if statusCode(err) == http.StatusUnprocessableEntity {
		return errors.AlreadyExists(fmt.Sprintf("branch %s already exists", branch))
	}
	if err != nil {
		return err
	}
	c.cache.InvalidateKind("branches", owner, repo)
	return nil
}

func (c *Client) DeleteBranch(ctx context.Context, owner, repo, branch string) error {
	err := c.do(ctx, http.MethodDelete, repoPath(owner, repo, "git/refs/heads", escapePath(branch)), nil, nil)
	switch statusCode(err) {
	case 0:
		if err != nil {
			return err
		}
	case http.StatusForbidden:
		return errors.Forbidden("permission denied or branch is protected")
	case http.StatusNotFound, http.StatusUnprocessableEntity:
		return errors.NotFound(fmt.Sprintf("branch %s not found", branch))
	default:
		return err
	}
	c.cache.InvalidateKind("branches", owner, repo)
	return nil
}

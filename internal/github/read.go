package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"ghos/internal/errors"
	"ghos/internal/remote"
)

type contentItem struct {
	Type     string `json:"type"`
	Name     string `json:"name"`
	Path     string `json:"path"`
	SHA      string `json:"sha"`
	Size     int64  `json:"size"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

type blobResponse struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

type refResponse struct {
	Object struct {
		SHA string `json:"sha"`
	} `json:"object"`
}

type commitResponse struct {
	SHA  string `json:"sha"`
	Tree struct {
		SHA string `json:"sha"`
	} `json:"tree"`
}

type repoResponse struct {
	Name          string `json:"name"`
	Description   string `json:"description"`
	DefaultBranch string `json:"default_branch"`
	Language      string `json:"language"`
	Stars         int    `json:"stargazers_count"`
	Forks         int    `json:"forks_count"`
}

func (r repoResponse) toRepository() remote.Repository {
	return remote.Repository{
		Name:          r.Name,
		Description:   r.Description,
		DefaultBranch: r.DefaultBranch,
		Language:      r.Language,
		Stars:         r.Stars,
		Forks:         r.Forks,
	}
}

func contentsPath(owner, repo, path string) string {
	if strings.Trim(path, "/") == "" {
		return repoPath(owner, repo, "contents")
	}
	return repoPath(owner, repo, "contents", escapePath(path))
}

// contents fetches the raw contents response, which is an object for a file
// and an array for a directory.
func (c *Client) contents(ctx context.Context, owner, repo, path string) (json.RawMessage, error) {
	return cached(c.cache, cacheKey("contents", owner, repo, strings.Trim(path, "/")), func() (json.RawMessage, error) {
		var raw json.RawMessage
		if err := c.do(ctx, http.MethodGet, contentsPath(owner, repo, path), nil, &raw); err != nil {
			return nil, err
		}
		return raw, nil
	})
}

func isArray(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '['
}

func (c *Client) GetFile(ctx context.Context, owner, repo, path string) (*remote.File, error) {
	raw, err := c.contents(ctx, owner, repo, path)
	if err != nil {
		return nil, err
	}
	if isArray(raw) {
		return nil, errors.NotAFile(path)
	}

	var item contentItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, errors.Transport("decoding file", err)
	}
	if item.Type != "" && item.Type != "file" {
		return nil, errors.NotAFile(path)
	}

	content, err := c.decodeContent(ctx, owner, repo, item.SHA, item.Content, item.Encoding)
	if err != nil {
		return nil, err
	}

	return &remote.File{
		Path:    item.Path,
		Name:    item.Name,
		Content: content,
		SHA:     item.SHA,
		Size:    item.Size,
	}, nil
}

// decodeContent handles the base64 payload of the contents API. Files over
// the inline limit come back with encoding "none" and are read from the
// blob API instead.
func (c *Client) decodeContent(ctx context.Context, owner, repo, sha, content, encoding string) (string, error) {
	switch encoding {
	case "base64":
		return decodeBase64(content)
	case "none":
		var blob blobResponse
		if err := c.do(ctx, http.MethodGet, repoPath(owner, repo, "git/blobs", url.PathEscape(sha)), nil, &blob); err != nil {
			return "", err
		}
		if blob.Encoding == "base64" {
			return decodeBase64(blob.Content)
		}
		return blob.Content, nil
	default:
		return content, nil
	}
}

func decodeBase64(s string) (string, error) {
	clean := strings.NewReplacer("\n", "", "\r", "").Replace(s)
	data, err := base64.StdEncoding.DecodeString(clean)
	if err != nil {
		return "", errors.Transport("decoding base64 content", err)
	}
	return string(data), nil
}

func (c *Client) ListDirectory(ctx context.Context, owner, repo, path string) ([]remote.Entry, error) {
	raw, err := c.contents(ctx, owner, repo, path)
	if err != nil {
		return nil, err
	}
	if !isArray(raw) {
		return nil, errors.NotADirectory(path)
	}

	var items []contentItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, errors.Transport("decoding directory", err)
	}

	entries := make([]remote.Entry, 0, len(items))
	for _, item := range items {
		typ := remote.EntryFile
		if item.Type == "dir" {
			typ = remote.EntryDir
		}
		entries = append(entries, remote.Entry{
			Name: item.Name,
			Path: item.Path,
			Type: typ,
			Size: item.Size,
			SHA:  item.SHA,
		})
	}
	return entries, nil
}

// ListRepositories lists the owner's repositories, most recently updated
// first. Only the first page is fetched.
func (c *Client) ListRepositories(ctx context.Context, owner string) ([]remote.Repository, error) {
	return cached(c.cache, cacheKey("repos", owner), func() ([]remote.Repository, error) {
		path := fmt.Sprintf("/users/%s/repos?per_page=%d&sort=updated", url.PathEscape(owner), c.perPage)
		var resp []repoResponse
		if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
			return nil, err
		}
		repos := make([]remote.Repository, 0, len(resp))
		for _, r := range resp {
			repos = append(repos, r.toRepository())
		}
		return repos, nil
	})
}

func (c *Client) GetRepository(ctx context.Context, owner, repo string) (*remote.Repository, error) {
	r, err := cached(c.cache, cacheKey("repo", owner, repo), func() (remote.Repository, error) {
		var resp repoResponse
		if err := c.do(ctx, http.MethodGet, repoPath(owner, repo), nil, &resp); err != nil {
			return remote.Repository{}, err
		}
		return resp.toRepository(), nil
	})
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// GetBranchHeadSHA is never cached; it anchors every commit.
func (c *Client) GetBranchHeadSHA(ctx context.Context, owner, repo, branch string) (string, error) {
	var ref refResponse
	if err := c.do(ctx, http.MethodGet, repoPath(owner, repo, "git/ref/heads", escapePath(branch)), nil, &ref); err != nil {
		return "", err
	}
	return ref.Object.SHA, nil
}

// GetTreeSHAForCommit is cached without invalidation since commits are
// immutable.
func (c *Client) GetTreeSHAForCommit(ctx context.Context, owner, repo, commitSHA string) (string, error) {
	return cached(c.cache, cacheKey("tree", commitSHA), func() (string, error) {
		var commit commitResponse
		if err := c.do(ctx, http.MethodGet, repoPath(owner, repo, "git/commits", url.PathEscape(commitSHA)), nil, &commit); err != nil {
			return "", err
		}
		return commit.Tree.SHA, nil
	})
}

package staging

import (
	"fmt"
	"strings"

	"ghos/internal/errors"
)

// The rules below keep one net operation per path. Each works on a map the
// caller owns and either applies fully or returns an error without touching it.

func cleanPath(path string) (string, error) {
	p := strings.Trim(path, "/")
	if p == "" {
		return "", errors.ValidationError("path is required", path)
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return "", errors.ValidationError(fmt.Sprintf("invalid path %q", path), path)
		}
	}
	return p, nil
}

func applyCreate(pending map[string]Operation, path, content string) error {
	if _, ok := pending[path].(Update); ok {
		return errors.StagingConflict(path, "an update is already staged; unstage it before creating")
	}
	pending[path] = Create{Path: path, Content: content}
	return nil
}

func applyUpdate(pending map[string]Operation, path, content, baseSHA string) error {
	switch cur := pending[path].(type) {
	case Create:
		// Not published yet, so there is no remote version to track.
		pending[path] = Create{Path: path, Content: content}
		return nil
	case Delete:
		if cur.BaseSHA != baseSHA {
			return errors.StagingConflict(path,
				fmt.Sprintf("staged for deletion at %s; unstage it before updating", short(cur.BaseSHA)))
		}
	}
	if baseSHA == "" {
		return errors.ValidationError("base sha is required to stage an update", path)
	}
	pending[path] = Update{Path: path, Content: content, BaseSHA: baseSHA}
	return nil
}

func applyDelete(pending map[string]Operation, path, baseSHA string) error {
	if _, ok := pending[path].(Create); ok {
		delete(pending, path)
		return nil
	}
	if baseSHA == "" {
		return errors.ValidationError("base sha is required to stage a delete", path)
	}
	pending[path] = Delete{Path: path, BaseSHA: baseSHA}
	return nil
}

func short(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}

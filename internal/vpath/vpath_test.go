package vpath

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name    string
		current string
		input   string
		want    string
	}{
		{"relative parent", "/repo1/src", "../docs", "/repo1/docs"},
		{"absolute", "/repo1/src", "/repo2/lib", "/repo2/lib"},
		{"absolute with dots", "/repo1", "/repo2/./a/../b", "/repo2/b"},
		{"dot", "/repo1/src", ".", "/repo1/src"},
		{"empty input", "/repo1", "", "/repo1"},
		{"repeated separators", "/", "repo1//src///app.js", "/repo1/src/app.js"},
		{"parent past root", "/repo1", "../../..", "/"},
		{"root current", "/", "repo1", "/repo1"},
		{"trailing slash", "/repo1", "src/", "/repo1/src"},
		{"only slashes", "/repo1", "///", "/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Resolve(tt.current, tt.input))
		})
	}
}

func TestResolveIdempotentWithDot(t *testing.T) {
	inputs := []string{"a/b/../c", "/x//y/./z", "../../..", "", ".", "/", "a/./././b/"}
	for _, cwd := range []string{"/", "/repo1", "/repo1/src/deep"} {
		for _, in := range inputs {
			once := Resolve(cwd, in)
			assert.Equal(t, once, Resolve(once, "."), "cwd=%q input=%q", cwd, in)
		}
	}
}

func TestResolveNeverEscapesRoot(t *testing.T) {
	for n := 1; n < 8; n++ {
		in := strings.Repeat("../", n)
		got := Resolve("/repo1/src", in)
		assert.True(t, strings.HasPrefix(got, "/"))
		if n >= 2 {
			assert.Equal(t, "/", got)
		}
	}
}

func TestParse(t *testing.T) {
	assert.Equal(t,
		RepoAddress{Owner: "alice", Repo: "repo1", Path: "src/app.js"},
		Parse("alice", "/repo1/src/app.js"))

	root := Parse("alice", "/")
	assert.Equal(t, RepoAddress{Owner: "alice"}, root)
	assert.True(t, root.IsRoot())

	repo := Parse("alice", "/repo1/")
	assert.True(t, repo.IsRepoRoot())
	assert.Equal(t, "", repo.Path)
}

func TestRepoAddressString(t *testing.T) {
	for _, p := range []string{"/", "/repo1", "/repo1/src/app.js"} {
		assert.Equal(t, p, Parse("alice", p).String())
		assert.Equal(t, p, Join(Parse("bob", p)))
	}
}

func TestBase(t *testing.T) {
	assert.Equal(t, "app.js", Base("/repo1/src/app.js"))
	assert.Equal(t, "repo1", Base("/repo1/"))
	assert.Equal(t, "/", Base("/"))
}

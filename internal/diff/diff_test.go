package diff

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompare(t *testing.T) {
	tests := []struct {
		name      string
		old, new  string
		additions int
		deletions int
		changed   []Line
	}{
		{
			name: "identical",
			old:  "a\nb\n",
			new:  "a\nb\n",
		},
		{
			name:      "line replaced",
			old:       "a\nb\nc\n",
			new:       "a\nB\nc\n",
			additions: 1,
			deletions: 1,
			changed:   []Line{{Addition, "B"}, {Deletion, "b"}},
		},
		{
			name:      "new file",
			old:       "",
			new:       "x\ny\n",
			additions: 2,
			changed:   []Line{{Addition, "x"}, {Addition, "y"}},
		},
		{
			name:      "duplicate lines counted",
			old:       "x\n",
			new:       "x\nx\n",
			additions: 1,
			changed:   []Line{{Addition, "x"}},
		},
		{
			name: "reordering is not a change",
			old:  "a\nb\n",
			new:  "b\na\n",
		},
		{
			name: "missing trailing newline ignored",
			old:  "a\nb",
			new:  "a\nb\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Compare(tt.old, tt.new)
			assert.Equal(t, tt.additions, r.Stats.Additions)
			assert.Equal(t, tt.deletions, r.Stats.Deletions)
			assert.Equal(t, tt.additions+tt.deletions, r.Stats.Changes)
			assert.Equal(t, tt.changed, r.Changed())
			assert.Equal(t, tt.additions+tt.deletions == 0, r.Identical())
		})
	}
}

func TestPrefix(t *testing.T) {
	assert.Equal(t, "+", Addition.Prefix())
	assert.Equal(t, "-", Deletion.Prefix())
	assert.Equal(t, " ", Context.Prefix())
}

package staging

import "sort"

// Kind names the three operation variants.
type Kind int

const (
	KindCreate Kind = iota + 1
	KindUpdate
	KindDelete
)

func (k Kind) String() string {
	switch k {
	case KindCreate:
		return "create"
	case KindUpdate:
		return "update"
	case KindDelete:
		return "delete"
	}
	return "unknown"
}

// Operation is a pending change to one path. The interface is sealed: the
// only implementations are Create, Update and Delete.
type Operation interface {
	Kind() Kind
	target() string
}

// Create publishes a file that does not exist remotely yet.
type Create struct {
	Path    string
	Content string
}

// Update replaces a remote file last seen at BaseSHA.
type Update struct {
	Path    string
	Content string
	BaseSHA string
}

// Delete removes a remote file last seen at BaseSHA.
type Delete struct {
	Path    string
	BaseSHA string
}

func (Create) Kind() Kind { return KindCreate }
func (Update) Kind() Kind { return KindUpdate }
func (Delete) Kind() Kind { return KindDelete }

func (o Create) target() string { return o.Path }
func (o Update) target() string { return o.Path }
func (o Delete) target() string { return o.Path }

// Entry is one row of a ledger partition. Content is empty for deletes and
// SHA is empty for creates.
type Entry struct {
	Path    string `json:"path"`
	Content string `json:"content,omitempty"`
	SHA     string `json:"sha,omitempty"`
}

// Ledger is a snapshot of the staged operations, partitioned by kind and
// sorted by path.
type Ledger struct {
	Creates []Entry `json:"creates"`
	Updates []Entry `json:"updates"`
	Deletes []Entry `json:"deletes"`
}

func (l Ledger) Len() int {
	return len(l.Creates) + len(l.Updates) + len(l.Deletes)
}

func (l Ledger) IsEmpty() bool {
	return l.Len() == 0
}

func newLedger(pending map[string]Operation) Ledger {
	l := Ledger{
		Creates: []Entry{},
		Updates: []Entry{},
		Deletes: []Entry{},
	}
	for _, op := range pending {
		switch o := op.(type) {
		case Create:
			l.Creates = append(l.Creates, Entry{Path: o.Path, Content: o.Content})
		case Update:
			l.Updates = append(l.Updates, Entry{Path: o.Path, Content: o.Content, SHA: o.BaseSHA})
		case Delete:
			l.Deletes = append(l.Deletes, Entry{Path: o.Path, SHA: o.BaseSHA})
		}
	}
	for _, part := range [][]Entry{l.Creates, l.Updates, l.Deletes} {
		sort.Slice(part, func(i, j int) bool { return part[i].Path < part[j].Path })
	}
	return l
}

package main

import (
	"fmt"
	"io"

	"ghos/internal/diff"
	"ghos/internal/remote"
	"ghos/internal/staging"
	"ghos/internal/workspace"

	"github.com/fatih/color"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
)

func osfsAt(dir string) billy.Filesystem {
	return osfs.New(dir)
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}

var (
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	blue   = color.New(color.FgBlue).SprintFunc()
)

func marker(kind staging.Kind) string {
	switch kind {
	case staging.KindCreate:
		return green("A")
	case staging.KindUpdate:
		return yellow("M")
	case staging.KindDelete:
		return red("D")
	}
	return " "
}

func printListing(out io.Writer, items []workspace.Item) {
	if len(items) == 0 {
		fmt.Fprintln(out, "(empty)")
		return
	}
	for _, it := range items {
		name := it.Name
		if it.Type == remote.EntryDir {
			fmt.Fprintf(out, "%s %s\n", marker(it.Staged), blue(name+"/"))
			continue
		}
		fmt.Fprintf(out, "%s %s\t%d\n", marker(it.Staged), name, it.Size)
	}
}

func printStatus(out io.Writer, status *workspace.Status) {
	if status.Ledger.IsEmpty() {
		fmt.Fprintln(out, "nothing staged")
		return
	}

	fmt.Fprintf(out, "Changes staged for %s/%s:\n", status.Owner, status.Repo)
	fmt.Fprintln(out, `  (use "ghos commit -m <message>" to publish, "ghos unstage <path>" to drop one)`)
	for _, e := range status.Ledger.Creates {
		fmt.Fprintf(out, "\t%s %s\n", marker(staging.KindCreate), e.Path)
	}
	for _, e := range status.Ledger.Updates {
		fmt.Fprintf(out, "\t%s %s\n", marker(staging.KindUpdate), e.Path)
	}
	for _, e := range status.Ledger.Deletes {
		fmt.Fprintf(out, "\t%s %s\n", marker(staging.KindDelete), e.Path)
	}
}

func printDiff(out io.Writer, result *diff.DiffResult) {
	if result.Identical() {
		fmt.Fprintln(out, "no line changes")
		return
	}

	added := color.New(color.FgGreen)
	removed := color.New(color.FgRed)
	header := color.New(color.FgCyan)

	header.Fprintf(out, "%d additions, %d deletions\n", result.Stats.Additions, result.Stats.Deletions)
	for _, line := range result.Changed() {
		switch line.Type {
		case diff.Addition:
			added.Fprintln(out, line.Type.Prefix()+line.Content)
		case diff.Deletion:
			removed.Fprintln(out, line.Type.Prefix()+line.Content)
		}
	}
}

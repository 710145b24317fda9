package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/soyeahso/bazaar/internal/domain"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
	faint  = color.New(color.Faint)
	bold   = color.New(color.Bold)
)

// success prints a green line with a check mark.
func success(w io.Writer, format string, a ...any) {
	green.Fprintf(w, "✓ "+format+"\n", a...)
}

// warning prints a yellow line.
func warning(w io.Writer, format string, a ...any) {
	yellow.Fprintf(w, "! "+format+"\n", a...)
}

// printError reports a command failure on stderr.
func printError(err error) {
	red.Fprintf(os.Stderr, "Error: ")
	fmt.Fprintln(os.Stderr, err)
}

// listingRow is one printable marketplace entry.
type listingRow struct {
	ID       string
	Name     string
	Category string
	Official bool
	Author   string
	Tags     []string
}

func templateRows(items []domain.Template) []listingRow {
	rows := make([]listingRow, len(items))
	for i, t := range items {
		rows[i] = listingRow{
			ID:       t.ID,
			Name:     t.Name,
			Category: t.Category,
			Official: t.IsOfficial,
			Author:   deref(t.AuthorName),
			Tags:     t.Tags,
		}
	}
	return rows
}

func agentRows(items []domain.AgentTemplate) []listingRow {
	rows := make([]listingRow, len(items))
	for i, a := range items {
		rows[i] = listingRow{
			ID:       a.ID,
			Name:     a.Name,
			Category: a.Category,
			Official: a.Official(),
			Author:   deref(a.AuthorName),
			Tags:     a.Tags,
		}
	}
	return rows
}

// printListing writes rows as an aligned table. Official entries are
// highlighted.
func printListing(w io.Writer, title string, rows []listingRow) {
	bold.Fprintf(w, "%s (%d)\n", title, len(rows))
	if len(rows) == 0 {
		faint.Fprintln(w, "  (none)")
		return
	}
	for _, r := range rows {
		marker := "  "
		name := r.Name
		if r.Official {
			marker = cyan.Sprint("★ ")
			name = cyan.Sprint(r.Name)
		}
		fmt.Fprintf(w, "%s%-32s %s", marker, name, faint.Sprintf("[%s]", r.Category))
		if r.Author != "" {
			fmt.Fprintf(w, " by %s", r.Author)
		}
		fmt.Fprintln(w)
		fmt.Fprintf(w, "    %s", faint.Sprint(r.ID))
		if len(r.Tags) > 0 {
			fmt.Fprintf(w, "  %s", strings.Join(r.Tags, ", "))
		}
		fmt.Fprintln(w)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

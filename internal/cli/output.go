package cli

import (
	"fmt"
	"io"
	"sort"

	"github.com/BartekS5/movielens-etl/internal/config"
	"github.com/BartekS5/movielens-etl/pkg/models"
	"github.com/jedib0t/go-pretty/table"
	"github.com/jedib0t/go-pretty/text"
)

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	// Don't uppercase the header values.
	t.Style().Format.Header = text.FormatDefault
	return t
}

func printStats(w io.Writer, stats *models.RunStats) {
	t := newTable(w)
	t.AppendHeader(table.Row{"run", "status", "items", "actors", "interactions", "errors", "duration"})
	t.AppendRow(table.Row{
		stats.RunID,
		stats.Status,
		stats.ItemsLoaded,
		stats.ActorsLoaded,
		stats.InteractionsLoaded,
		stats.Errors,
		fmt.Sprintf("%.2fs", stats.DurationSeconds),
	})
	t.Render()
	if stats.ErrorMessage != "" {
		fmt.Fprintf(w, "error: %s\n", stats.ErrorMessage)
	}
}

func printCounts(w io.Writer, counts map[string]int64) {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)

	t := newTable(w)
	t.AppendHeader(table.Row{"table", "rows"})
	for _, name := range names {
		t.AppendRow(table.Row{name, counts[name]})
	}
	t.Render()
}

func printCheck(w io.Writer, cfg *config.Config, objectsErr error, dbOK bool) {
	objectsStatus := "ok"
	if objectsErr != nil {
		objectsStatus = objectsErr.Error()
	}
	dbStatus := "ok"
	if !dbOK {
		dbStatus = "unreachable"
	}

	t := newTable(w)
	t.AppendHeader(table.Row{"store", "backend", "status"})
	t.AppendRow(table.Row{"objects", cfg.Objects.Backend, objectsStatus})
	t.AppendRow(table.Row{"database", cfg.Dialect().Name, dbStatus})
	t.Render()
}

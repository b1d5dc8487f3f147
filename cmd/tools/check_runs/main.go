package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/david/jv-board/internal/db"
)

func main() {
	limit := flag.Int("limit", 10, "Number of runs to show")
	flag.Parse()

	ctx := context.Background()
	pool, err := db.Connect(ctx)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	runs, err := db.NewStore(pool).ListRuns(ctx, *limit)
	if err != nil {
		log.Fatal(err)
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Source", "Status", "Bids", "Agreements", "Projects", "Rejected", "Duration", "Started", "Error"})

	for _, r := range runs {
		duration := "Running..."
		if r.CompletedAt != nil {
			duration = r.CompletedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
		}
		t.AppendRow(table.Row{r.Source, r.Status, r.BidsFound, r.AgreementsSeen, r.Projects, r.Rejected,
			duration, humanize.Time(r.StartedAt), r.Error})
	}
	t.Render()
}

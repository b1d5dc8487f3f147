package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/david/jv-board/internal/board"
	"github.com/david/jv-board/internal/db"
	"github.com/david/jv-board/internal/ingest"
	"github.com/david/jv-board/internal/models"
)

func main() {
	configPath := flag.String("config", "", "Path to feeds.yaml (defaults to the embedded registry)")
	dry := flag.Bool("dry", false, "Fetch and reconcile without touching the database")
	flag.Parse()

	reg, err := ingest.LoadRegistry(*configPath)
	if err != nil {
		log.Fatalf("Failed to load feed registry: %v", err)
	}

	ctx := context.Background()
	var store board.Store
	if !*dry {
		pool, err := db.Connect(ctx)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer pool.Close()

		if err := db.ApplyMigrations(ctx, pool); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		store = db.NewStore(pool)
	}

	b := board.New(ingest.NewFeedClient(reg), store, reg.AllCategories())

	log.Printf("Refreshing from %s + %s", reg.Feeds.Bid.URL, reg.Feeds.Agreement.URL)
	report, err := b.Refresh(ctx)
	if errors.Is(err, board.ErrNoData) {
		log.Printf("No data to load (bids=%d agreements=%d shape_mismatch=%v)",
			report.Stats.BidsFound, report.Stats.AgreementsSeen, report.Stats.ShapeMismatch)
		return
	}
	if err != nil {
		log.Fatalf("Refresh failed: %v", err)
	}

	printProjects(b.Projects())
	s := report.Stats
	log.Printf("Done: %d projects, %d matched, %d orphan bids, %d agreements dropped, %d rejected",
		len(b.Projects()), s.Matched, s.Orphans, s.AgreementsDropped, s.BidsRejected+s.AgreementsRejected)
}

func printProjects(projects []models.Project) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"ID", "Name", "Representative", "Members", "Status", "Deadline", "Amount"})
	for _, p := range projects {
		t.AppendRow(table.Row{
			p.ID,
			ingest.TruncateText(ingest.CleanProjectName(p.Name), 40),
			p.Representative,
			len(p.Members),
			p.Status(),
			p.Deadline,
			ingest.FormatAmount(p.Amount),
		})
	}
	t.Render()
}

package main

import (
	"context"
	"flag"
	"log"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/david/jv-board/internal/board"
	"github.com/david/jv-board/internal/db"
	"github.com/david/jv-board/internal/ingest"
	"github.com/david/jv-board/internal/sheet"
)

func main() {
	path := flag.String("file", "", "Path to the .xlsx workbook")
	kindFlag := flag.String("kind", "agreement", "Workbook layout: agreement or notice")
	apply := flag.Bool("apply", false, "Replace the stored collection with the parsed projects")
	flag.Parse()

	if *path == "" {
		log.Fatal("Please provide a workbook using -file flag")
	}
	kind, err := sheet.ParseKind(*kindFlag)
	if err != nil {
		log.Fatal(err)
	}

	f, err := os.Open(*path)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()

	res, err := sheet.Parse(f, kind)
	if err != nil {
		log.Fatalf("Import failed: %v", err)
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"ID", "Name", "Client", "Representative", "Members", "Deadline", "Amount", "Shared With"})
	for _, p := range res.Projects {
		t.AppendRow(table.Row{p.ID, ingest.TruncateText(p.Name, 40), p.Client, p.Representative,
			len(p.Members), p.Deadline, ingest.FormatAmount(p.Amount), strings.Join(p.SharedWith, ", ")})
	}
	t.Render()
	log.Printf("Sheet %q (%s): %d projects, %d rows dropped", res.Sheet, res.Kind, len(res.Projects), res.Dropped)

	if !*apply {
		return
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()
	if err := db.ApplyMigrations(ctx, pool); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	reg, err := ingest.LoadRegistry(os.Getenv("FEEDS_CONFIG"))
	if err != nil {
		log.Fatalf("Failed to load feed registry: %v", err)
	}
	b := board.New(nil, db.NewStore(pool), reg.AllCategories())
	run, err := b.ReplaceFromImport(ctx, res.Projects)
	if err != nil {
		log.Fatalf("Failed to store import: %v", err)
	}
	log.Printf("Stored %d projects (run %s)", run.Projects, run.ID)
}

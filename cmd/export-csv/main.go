package main

import (
	"context"
	"flag"
	"log"
	"os"
	"path/filepath"
	"time"

	"novelrank/internal/app"
	"novelrank/internal/export"
	"novelrank/internal/sorter"
	"novelrank/pkg/models"
)

func main() {
	var (
		configDir = flag.String("config", ".", "directory holding config.yaml")
		date      = flag.String("date", "", "snapshot date (YYYY-MM-DD); default latest")
		source    = flag.String("source", "", "single source key; default all sources")
		out       = flag.String("out", "", "output CSV path; default data/rank_<date>.csv")
		sortKey   = flag.String("sort", "rank", "rank|category|gender|period")
	)
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a, err := app.Open(*configDir)
	if err != nil {
		log.Fatalf("startup: %v", err)
	}
	defer a.Close()

	d := *date
	if d == "" {
		if d, err = a.Store.LatestDate(ctx); err != nil {
			log.Fatalf("latest date: %v", err)
		}
	}

	var records []models.NovelRank
	if *source != "" {
		records, err = a.Store.LoadSnapshot(ctx, *source, d)
	} else {
		records, err = a.Store.LoadDate(ctx, d)
	}
	if err != nil {
		log.Fatalf("load %s: %v", d, err)
	}
	records = sorter.Apply(records, *sortKey)

	path := *out
	if path == "" {
		path = filepath.Join("data", "rank_"+d+".csv")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		log.Fatalf("mkdir: %v", err)
	}
	f, err := os.Create(path)
	if err != nil {
		log.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	if err := export.WriteCSV(f, d, records); err != nil {
		log.Fatalf("write csv: %v", err)
	}
	log.Printf("✅ exported %d records for %s to %s", len(records), d, path)
}

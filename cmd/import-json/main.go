package main

import (
	"context"
	"flag"
	"log"
	"time"

	"novelrank/internal/app"
)

func main() {
	var (
		configDir = flag.String("config", ".", "directory holding config.yaml")
		dataDir   = flag.String("data", "data", "legacy JSON data directory")
	)
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	a, err := app.Open(*configDir)
	if err != nil {
		log.Fatalf("startup: %v", err)
	}
	defer a.Close()

	res, err := a.Store.ImportDir(ctx, *dataDir)
	if err != nil {
		log.Fatalf("import failed: %v", err)
	}
	log.Printf("✅ imported %d snapshots (%d records), skipped %d of %d files",
		res.Imported, res.Records, res.Skipped, res.Files)
}

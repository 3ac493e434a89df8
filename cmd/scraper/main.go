package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"novelrank/internal/app"
	"novelrank/internal/export"
	"novelrank/internal/refresh"
	"novelrank/pkg/models"
)

func main() {
	var (
		configDir = flag.String("config", ".", "directory holding config.yaml")
		sources   = flag.String("source", "", "comma-separated source keys; default all")
		force     = flag.Bool("force", false, "scrape even when today's snapshot exists")
		notify    = flag.Bool("notify", false, "send the summary to the configured webhook")
		timeout   = flag.Duration("timeout", 30*time.Minute, "overall deadline")
	)
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, *timeout)
	defer cancelTimeout()

	a, err := app.Open(*configDir)
	if err != nil {
		log.Fatalf("startup: %v", err)
	}
	defer a.Close()

	var notifiers []refresh.Notifier
	if *notify && a.Config.Webhook.URL != "" {
		notifiers = append(notifiers, export.NewWebhook(a.Config.Webhook.URL, a.Config.Webhook.AppURL, a.Log))
	}

	var keys []string
	for _, k := range strings.Split(*sources, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}

	sum, err := a.Runner(notifiers...).Run(ctx, refresh.Options{Sources: keys, Force: *force, Trigger: "cli"})
	for _, r := range sum.Results {
		log.Printf("%-10s %-8s %4d %s", r.Source, r.Outcome, r.Count, r.Error)
	}
	if err != nil {
		log.Fatalf("refresh %s: %v", sum.Status, err)
	}
	if sum.Status == models.StatusFailed {
		log.Fatalf("refresh failed for every source")
	}
	log.Printf("✅ %s: %d records for %s", sum.Status, sum.Total, sum.Date)
}

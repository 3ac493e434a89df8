package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"novelrank/internal/feed"
)

const defaultBaseURL = "http://localhost:8080"

func main() {
	app := &cli.App{
		Name:  "novelrank",
		Usage: "scrape and inspect web-novel rankings",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Value: ".", Usage: "directory holding config.yaml"},
		},
		Commands: []*cli.Command{
			{
				Name:   "sources",
				Usage:  "list registered sources",
				Action: SourcesAction,
			},
			{
				Name:   "categories",
				Usage:  "list the ranking lists of a source",
				Flags:  []cli.Flag{sourceFlag()},
				Action: CategoriesAction,
			},
			{
				Name:  "scrape",
				Usage: "scrape one source and print the result",
				Flags: []cli.Flag{
					sourceFlag(),
					&cli.StringFlag{Name: "gender", Usage: "male|female"},
					&cli.StringFlag{Name: "period", Usage: "adapter period key, e.g. read|new"},
					&cli.StringFlag{Name: "category", Usage: "comma-separated category names or ids"},
					&cli.StringFlag{Name: "sort", Value: "rank", Usage: "rank|category|gender|period"},
					&cli.StringFlag{Name: "group", Value: "none", Usage: "none|category|gender"},
					&cli.BoolFlag{Name: "save", Usage: "store an unfiltered result as today's snapshot"},
				},
				Action: ScrapeAction,
			},
			{
				Name:  "refresh",
				Usage: "run a full refresh into the store",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "source", Usage: "source keys; default all"},
					&cli.BoolFlag{Name: "force", Usage: "scrape even when today's snapshot exists"},
				},
				Action: RefreshAction,
			},
			{
				Name:   "dates",
				Usage:  "list dates with stored snapshots",
				Action: DatesAction,
			},
			{
				Name:  "show",
				Usage: "print a stored snapshot",
				Flags: []cli.Flag{
					sourceFlag(),
					&cli.StringFlag{Name: "date", Usage: "YYYY-MM-DD; default latest"},
					&cli.StringFlag{Name: "sort", Value: "rank"},
					&cli.StringFlag{Name: "group", Value: "none"},
				},
				Action: ShowAction,
			},
			{
				Name:  "trend",
				Usage: "rank history of one title",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "title", Required: true},
					&cli.StringFlag{Name: "source"},
					&cli.IntFlag{Name: "limit", Value: 30},
				},
				Action: TrendAction,
			},
			{
				Name:  "analytics",
				Usage: "category ranking, cross-platform overlap and channel heat",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "date", Usage: "YYYY-MM-DD; default latest"},
					&cli.StringFlag{Name: "kind", Value: "categories", Usage: "categories|cross|heat"},
				},
				Action: AnalyticsAction,
			},
			{
				Name:      "hash-password",
				Usage:     "print a bcrypt hash for auth.admin_password_hash",
				ArgsUsage: "<password>",
				Action:    HashPasswordAction,
			},
			{
				Name:  "remote",
				Usage: "talk to a running api-server",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "api", Value: defaultBaseURL, Usage: "API base URL"},
					&cli.StringFlag{Name: "token", Value: defaultTokenPath(), Usage: "token file path"},
				},
				Subcommands: []*cli.Command{
					{
						Name: "login",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "username", Value: "admin"},
							&cli.StringFlag{Name: "password", Required: true},
						},
						Action: LoginAction,
					},
					{Name: "logout", Action: LogoutAction},
					{Name: "schedule", Usage: "show the refresh schedule", Action: ScheduleAction},
					{
						Name:  "set-schedule",
						Usage: "change the refresh schedule",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "time", Usage: "HH:MM"},
							&cli.BoolFlag{Name: "enabled", Value: true},
						},
						Action: SetScheduleAction,
					},
					{
						Name:   "refresh",
						Flags:  []cli.Flag{&cli.BoolFlag{Name: "force"}},
						Action: RemoteRefreshAction,
					},
					{Name: "watch", Usage: "stream refresh events over WebSocket", Action: WatchAction},
					{
						Name:  "tail",
						Usage: "follow the TCP refresh feed, reconnecting on drops",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "feed", Value: "127.0.0.1:7070", Usage: "TCP feed address"},
							&cli.DurationFlag{Name: "retry", Value: feed.DefaultRetry, Usage: "minimum gap between reconnects"},
							&cli.BoolFlag{Name: "raw", Usage: "print every event as a JSON line"},
						},
						Action: TailAction,
					},
				},
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := app.RunContext(ctx, os.Args)
	stop()
	if err != nil {
		log.Fatal(err)
	}
}

func sourceFlag() cli.Flag {
	return &cli.StringFlag{Name: "source", Usage: "source key; default scrape.default_source"}
}

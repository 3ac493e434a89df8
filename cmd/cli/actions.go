package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"novelrank/internal/analytics"
	"novelrank/internal/app"
	"novelrank/internal/auth"
	"novelrank/internal/export"
	"novelrank/internal/heat"
	"novelrank/internal/refresh"
	"novelrank/internal/scraper"
	"novelrank/internal/sorter"
	"novelrank/pkg/models"
)

func openApp(c *cli.Context) (*app.App, error) {
	return app.Open(c.String("config"))
}

func SourcesAction(c *cli.Context) error {
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tNAME")
	for _, e := range scraper.Entries() {
		fmt.Fprintf(tw, "%s\t%s\n", e.Key, e.Name)
	}
	return tw.Flush()
}

func CategoriesAction(c *cli.Context) error {
	a, err := openApp(c)
	if err != nil {
		return err
	}
	defer a.Close()

	ad, err := a.Adapter(c.String("source"))
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCHANNEL\tPERIOD")
	for _, cat := range ad.ListCategories() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", cat.ID, cat.Name, cat.GenderName, cat.Period)
	}
	return tw.Flush()
}

func ScrapeAction(c *cli.Context) error {
	a, err := openApp(c)
	if err != nil {
		return err
	}
	defer a.Close()

	ad, err := a.Adapter(c.String("source"))
	if err != nil {
		return err
	}
	f := scraper.Filter{Gender: c.String("gender"), Period: c.String("period")}
	for _, cat := range strings.Split(c.String("category"), ",") {
		if cat = strings.TrimSpace(cat); cat != "" {
			f.Categories = append(f.Categories, cat)
		}
	}

	records, err := ad.ScrapeAll(c.Context, f)
	if err != nil {
		return err
	}
	if c.Bool("save") {
		if !f.IsZero() {
			return errors.New("--save needs an unfiltered scrape")
		}
		if len(records) > 0 {
			if err := a.Store.SaveSnapshot(c.Context, ad.Key(), a.Store.Today(), records); err != nil {
				return err
			}
		}
	}
	return export.NewConsole(os.Stdout).Export(sorter.Apply(records, c.String("sort")), c.String("group"))
}

func RefreshAction(c *cli.Context) error {
	a, err := openApp(c)
	if err != nil {
		return err
	}
	defer a.Close()

	sum, err := a.Runner().Run(c.Context, refresh.Options{
		Sources: c.StringSlice("source"),
		Force:   c.Bool("force"),
		Trigger: "cli",
	})
	printRefreshTable(sum)
	return err
}

func printRefreshTable(sum models.RefreshSummary) {
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tOUTCOME\tCOUNT\tERROR")
	for _, r := range sum.Results {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", r.Name, r.Outcome, r.Count, r.Error)
	}
	_ = tw.Flush()
	fmt.Printf("\n%s: %d records for %s\n", sum.Status, sum.Total, sum.Date)
}

func DatesAction(c *cli.Context) error {
	a, err := openApp(c)
	if err != nil {
		return err
	}
	defer a.Close()

	dates, err := a.Store.ListDates(c.Context)
	if err != nil {
		return err
	}
	if len(dates) == 0 {
		fmt.Println("No snapshots stored")
		return nil
	}
	for _, d := range dates {
		counts, err := a.Store.SourcesForDate(c.Context, d)
		if err != nil {
			return err
		}
		parts := make([]string, len(counts))
		for i, sc := range counts {
			parts[i] = fmt.Sprintf("%s=%d", sc.Source, sc.Count)
		}
		fmt.Printf("%s  %s\n", d, strings.Join(parts, " "))
	}
	return nil
}

func resolveDate(c *cli.Context, a *app.App) (string, error) {
	if d := c.String("date"); d != "" {
		return d, nil
	}
	return a.Store.LatestDate(c.Context)
}

func ShowAction(c *cli.Context) error {
	a, err := openApp(c)
	if err != nil {
		return err
	}
	defer a.Close()

	date, err := resolveDate(c, a)
	if err != nil {
		return err
	}
	source := c.String("source")
	if source == "" {
		source = a.Config.Scrape.DefaultSource
	}
	records, err := a.Store.LoadSnapshot(c.Context, source, date)
	if err != nil {
		return err
	}
	fmt.Printf("%s %s\n", scraper.DisplayName(source), date)
	return export.NewConsole(os.Stdout).Export(sorter.Apply(records, c.String("sort")), c.String("group"))
}

func TrendAction(c *cli.Context) error {
	a, err := openApp(c)
	if err != nil {
		return err
	}
	defer a.Close()

	points, err := a.Store.Trend(c.Context, c.String("title"), c.String("source"), c.Int("limit"))
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tSOURCE\tRANK\tHEAT\tCATEGORY\tPERIOD")
	for _, p := range points {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n", p.Date, p.SourceName, p.Rank, p.Heat, p.Category, p.Period)
	}
	return tw.Flush()
}

func AnalyticsAction(c *cli.Context) error {
	a, err := openApp(c)
	if err != nil {
		return err
	}
	defer a.Close()

	date, err := resolveDate(c, a)
	if err != nil {
		return err
	}
	records, err := a.Store.LoadDate(c.Context, date)
	if err != nil {
		return err
	}
	fmt.Printf("%s (%d records)\n\n", date, len(records))

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	switch c.String("kind") {
	case "categories":
		fmt.Fprintln(tw, "CATEGORY\tTOP10 HEAT\tBOOKS")
		for _, cr := range analytics.CategoryRanking(records) {
			fmt.Fprintf(tw, "%s\t%s\t%d\n", cr.Category, heat.Format(cr.TotalHeat), cr.BookCount)
		}
	case "cross":
		fmt.Fprintln(tw, "TITLE\tSOURCES")
		for _, m := range analytics.CrossPlatform(records) {
			fmt.Fprintf(tw, "%s\t%s\n", m.Title, strings.Join(m.Sources, ","))
		}
	case "heat":
		ch := analytics.ChannelHeat(records)
		for _, bucket := range []struct {
			name  string
			books []analytics.BookHeat
		}{{models.GenderMale, ch.Male}, {models.GenderFemale, ch.Female}} {
			fmt.Fprintf(tw, "%s\t\t\n", bucket.name)
			for i, b := range bucket.books {
				fmt.Fprintf(tw, "%d\t%s\t%s\n", i+1, b.Title, b.Heat)
			}
		}
	default:
		return fmt.Errorf("unknown kind %q", c.String("kind"))
	}
	return tw.Flush()
}

func HashPasswordAction(c *cli.Context) error {
	pw := c.Args().First()
	if pw == "" {
		return errors.New("usage: novelrank hash-password <password>")
	}
	h, err := auth.HashPassword(pw)
	if err != nil {
		return err
	}
	fmt.Println(h)
	return nil
}

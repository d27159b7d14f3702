package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"townbeat/internal/cli"
	"townbeat/internal/db"
)

func runStats(args []string) int {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	regionSlug := fs.String("region", "", "Show only this region slug")
	days := fs.Int("days", 7, "Days of publish history to include")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "stats does not accept positional arguments")
		return 2
	}
	if *days < 1 || *days > 90 {
		fmt.Fprintln(os.Stderr, "--days must be between 1 and 90")
		return 2
	}

	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}

	ctx, cancel, pool, _, err := connectPool(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	regionStore := db.NewRegionStore(pool)
	statsStore := db.NewStatsStore(pool)

	var regions []db.Region
	if slug := strings.TrimSpace(strings.ToLower(*regionSlug)); slug != "" {
		region, err := regionStore.BySlug(ctx, slug)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load region: %v\n", err)
			return 1
		}
		if region == nil {
			fmt.Fprintf(os.Stderr, "Region %q is unknown\n", slug)
			return 1
		}
		regions = []db.Region{*region}
	} else {
		regions, err = regionStore.List(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to list regions: %v\n", err)
			return 1
		}
	}
	if len(regions) == 0 {
		fmt.Fprintln(os.Stderr, "No regions found; run the workflow first")
		return 1
	}

	stats := make([]*db.RegionStats, 0, len(regions))
	for _, region := range regions {
		regionStats, err := statsStore.RegionStats(ctx, region.RegionID, region.Slug, *days)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to query stats for %s: %v\n", region.Slug, err)
			return 1
		}
		stats = append(stats, regionStats)
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(stats); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	rows := make([][]string, 0, len(stats)*4)
	for _, regionStats := range stats {
		for _, item := range regionStats.Articles {
			rows = append(rows, []string{regionStats.RegionSlug, "article", item.Status, strconv.Itoa(item.Count)})
		}
		for _, item := range regionStats.Events {
			rows = append(rows, []string{regionStats.RegionSlug, "event", item.Status, strconv.Itoa(item.Count)})
		}
		published := 0
		for _, day := range regionStats.PublishedByDay {
			published += day.Count
		}
		rows = append(rows, []string{
			regionStats.RegionSlug,
			"published",
			fmt.Sprintf("last %dd", *days),
			strconv.Itoa(published),
		})
	}
	if err := writeTable([]string{"REGION", "KIND", "STATUS", "COUNT"}, rows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to print table: %v\n", err)
		return 1
	}
	return 0
}

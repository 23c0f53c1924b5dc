// Package main is the entry point for the ranking CLI.
//
// rank reads a JSON array of listings from a file or stdin, orders it the
// way the marketplace does and prints the result with scores.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/onnwee/marketplace/internal/config"
	"github.com/onnwee/marketplace/internal/listing"
	"github.com/onnwee/marketplace/internal/logging"
	"github.com/onnwee/marketplace/internal/visibility"
)

// Output modes.
const (
	modeRank     = "rank"
	modeFeatured = "featured"
	modePage     = "page"
	modeSearch   = "search"
)

var errUsage = errors.New("usage error")

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, "rank:", err)
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

type options struct {
	configPath      string
	calibrationPath string
	mode            string
	now             string
	page            int
	pageSize        int
	query           string
	category        string
	province        string
	city            string
	sortBy          string
}

func parseFlags(args []string, stderr io.Writer) (options, []string, error) {
	var opts options
	fs := flag.NewFlagSet("rank", flag.ContinueOnError)
	fs.SetOutput(stderr)
	help := fs.Bool("help", false, "display help message")
	fs.StringVar(&opts.configPath, "config", "", "optional YAML config file")
	fs.StringVar(&opts.calibrationPath, "calibration", "", "ranking calibration JSON (overrides RANKING_CALIBRATION_PATH)")
	fs.StringVar(&opts.mode, "mode", modeRank, "rank, featured, page or search")
	fs.StringVar(&opts.now, "now", "", "evaluate featured windows at this RFC 3339 instant instead of the current time")
	fs.IntVar(&opts.page, "page", 1, "page number for -mode page")
	fs.IntVar(&opts.pageSize, "page-size", 0, "page size for -mode page (default from config)")
	fs.StringVar(&opts.query, "q", "", "title substring for -mode search")
	fs.StringVar(&opts.category, "category", "", "category substring for -mode search")
	fs.StringVar(&opts.province, "province", "", "province for -mode search")
	fs.StringVar(&opts.city, "city", "", "city for -mode search")
	fs.StringVar(&opts.sortBy, "sort", string(listing.SortRelevance), "relevance, price or latest for -mode search")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Marketplace Visibility Ranker")
		fmt.Fprintln(stderr)
		fmt.Fprintln(stderr, "Usage: rank [options] [listings.json]")
		fmt.Fprintln(stderr)
		fmt.Fprintln(stderr, "Reads stdin when no file is given.")
		fmt.Fprintln(stderr)
		fmt.Fprintln(stderr, "Options:")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return opts, nil, err
	}
	if *help {
		fs.Usage()
		return opts, nil, flag.ErrHelp
	}
	switch opts.mode {
	case modeRank, modeFeatured, modePage, modeSearch:
	default:
		return opts, nil, fmt.Errorf("%w: unknown mode %q", errUsage, opts.mode)
	}
	if fs.NArg() > 1 {
		return opts, nil, fmt.Errorf("%w: at most one input file", errUsage)
	}
	return opts, fs.Args(), nil
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	opts, files, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	cfg, errs := config.Load(opts.configPath)
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	logger := logging.NewWithWriter(cfg.Env, stderr)

	calibrationPath := cfg.CalibrationPath
	if opts.calibrationPath != "" {
		calibrationPath = opts.calibrationPath
	}
	calibration, err := visibility.LoadCalibration(calibrationPath)
	if err != nil {
		return err
	}

	rankerOpts := calibration.Options()
	if opts.now != "" {
		now, err := time.Parse(time.RFC3339, opts.now)
		if err != nil {
			return fmt.Errorf("%w: -now: %v", errUsage, err)
		}
		rankerOpts = append(rankerOpts, visibility.WithClock(func() time.Time { return now }))
	}
	ranker := visibility.New(rankerOpts...)

	in := stdin
	if len(files) == 1 {
		f, err := os.Open(files[0])
		if err != nil {
			return fmt.Errorf("failed to open listings: %w", err)
		}
		defer f.Close()
		in = f
	}

	records, err := decodeRecords(in)
	if err != nil {
		return err
	}
	logger.Debug("loaded listings", "count", len(records), "mode", opts.mode)

	result, err := rank(ctx, opts, cfg, ranker, logger, records)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func rank(ctx context.Context, opts options, cfg *config.Config, ranker *visibility.Ranker, logger *slog.Logger, records []record) (any, error) {
	if opts.mode == modeRank {
		ordered := make([]record, len(records))
		copy(ordered, records)
		visibility.Sort(ranker, ordered, func(r record) visibility.Input { return r.input })
		out := make([]scored, len(ordered))
		for i, r := range ordered {
			out[i] = score(ranker, r.listing)
		}
		return out, nil
	}

	src := listing.NewMemorySource()
	for _, r := range records {
		if _, err := src.Save(ctx, r.listing); err != nil {
			return nil, err
		}
	}
	svc := listing.NewService(src, ranker,
		listing.WithLogger(logger),
		listing.WithFeatured(cfg.FeaturedPool, cfg.FeaturedLimit),
		listing.WithDefaultPageSize(cfg.PageSize),
	)

	switch opts.mode {
	case modeFeatured:
		items, err := svc.Featured(ctx)
		if err != nil {
			return nil, err
		}
		return scoreAll(ranker, items), nil
	case modePage:
		page, err := svc.Page(ctx, opts.page, opts.pageSize)
		if err != nil {
			return nil, err
		}
		return scoredPage{
			Items:      scoreAll(ranker, page.Items),
			Total:      page.Total,
			Page:       page.Page,
			PageSize:   page.PageSize,
			TotalPages: page.TotalPages,
		}, nil
	default:
		items, err := svc.Search(ctx, listing.Filter{
			Query:    opts.query,
			Category: opts.category,
			Province: opts.province,
			City:     opts.city,
		}, listing.ParseSortBy(opts.sortBy))
		if err != nil {
			return nil, err
		}
		return scoreAll(ranker, items), nil
	}
}

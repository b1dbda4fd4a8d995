// Command coupon-ingest bulk-loads campaign coupons from gzipped CSV files.
//
// Each file holds one campaign with the header
//
//	code,discount_type,value,min_purchase,max_discount,usage_limit,expires_at
//
// A code that shows up in more than one file is ambiguous and is skipped.
// Codes already in the database are left untouched.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"sync/atomic"

	"github.com/go-faster/errors"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/cupcake-checkout/internal/domain/coupon"
	"github.com/xenking/cupcake-checkout/internal/storage/postgres"
)

func main() {
	var (
		dataDir     string
		pattern     string
		databaseURL string
		workers     int
		capacity    uint
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing campaign files")
	flag.StringVar(&pattern, "pattern", "*.csv.gz", "glob of campaign files inside data-dir")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&workers, "workers", 8, "concurrent inserts")
	flag.UintVar(&capacity, "bloom-capacity", 10_000_000, "expected codes per file")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, filepath.Join(dataDir, pattern), databaseURL, workers, capacity); err != nil {
		slog.Error("coupon ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("coupon ingest completed successfully")
}

func run(ctx context.Context, glob, databaseURL string, workers int, capacity uint) error {
	files, err := filepath.Glob(glob)
	if err != nil {
		return errors.Wrap(err, "glob campaign files")
	}
	if len(files) == 0 {
		return errors.Errorf("no campaign files match %s", glob)
	}
	sort.Strings(files)

	slog.Info("finding codes shared between files", slog.Int("files", len(files)))
	dupes, err := findDuplicates(ctx, files, capacity)
	if err != nil {
		return errors.Wrap(err, "find duplicates")
	}
	slog.Info("ambiguous codes skipped", slog.Int("count", len(dupes)))

	slog.Info("connecting to database")
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	return load(ctx, postgres.NewCouponStore(pool), files, dupes, workers)
}

// Inserter stores one coupon, reporting false when the code already exists.
type Inserter interface {
	Insert(ctx context.Context, c *coupon.Coupon) (bool, error)
}

type loadStats struct {
	inserted atomic.Int64
	existing atomic.Int64
	invalid  atomic.Int64
	skipped  atomic.Int64
}

// load streams every file and inserts its valid, unambiguous coupons with up
// to workers concurrent inserts.
func load(ctx context.Context, store Inserter, files []string, dupes map[string]struct{}, workers int) error {
	var stats loadStats

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, workers))

	for _, path := range files {
		err := streamCampaign(ctx, path, func(line int, rec []string) error {
			c, err := parseRecord(rec)
			if err != nil {
				stats.invalid.Add(1)
				slog.Warn("invalid row", slog.String("file", path), slog.Int("line", line), slog.String("error", err.Error()))
				return nil
			}
			if _, ok := dupes[c.Code]; ok {
				stats.skipped.Add(1)
				return nil
			}
			g.Go(func() error {
				inserted, err := store.Insert(ctx, c)
				if err != nil {
					return errors.Wrapf(err, "insert %s", c.Code)
				}
				if inserted {
					stats.inserted.Add(1)
				} else {
					stats.existing.Add(1)
				}
				return nil
			})
			return nil
		})
		if err != nil {
			if werr := g.Wait(); werr != nil {
				return werr
			}
			return err
		}
		slog.Info("file queued", slog.String("file", path))
	}

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("load complete",
		slog.Int64("inserted", stats.inserted.Load()),
		slog.Int64("existing", stats.existing.Load()),
		slog.Int64("invalid", stats.invalid.Load()),
		slog.Int64("ambiguous", stats.skipped.Load()),
	)
	return nil
}

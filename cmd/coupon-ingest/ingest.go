package main

import (
	"context"
	"encoding/csv"
	"io"
	"log/slog"
	"math/bits"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/cupcake-checkout/internal/domain/coupon"
)

const (
	bloomFPR      = 0.001
	progressEvery = 1_000_000
	maxCodeLen    = 50
)

var header = []string{"code", "discount_type", "value", "min_purchase", "max_discount", "usage_limit", "expires_at"}

// streamCampaign calls fn for every data row of a gzipped campaign CSV.
func streamCampaign(ctx context.Context, path string, fn func(line int, rec []string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	r := csv.NewReader(gz)
	r.FieldsPerRecord = len(header)
	r.ReuseRecord = true

	first, err := r.Read()
	if err != nil {
		return errors.Wrapf(err, "read header of %s", path)
	}
	for i, col := range header {
		if strings.TrimSpace(strings.ToLower(first[i])) != col {
			return errors.Errorf("%s: column %d is %q, want %q", path, i+1, first[i], col)
		}
	}

	for line := 2; ; line++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "read %s", path)
		}
		if err := fn(line, rec); err != nil {
			return err
		}
	}
}

// parseRecord turns a CSV row into a coupon. Empty optional columns stay nil.
func parseRecord(rec []string) (*coupon.Coupon, error) {
	c := &coupon.Coupon{
		Code:         coupon.NormalizeCode(rec[0]),
		DiscountType: coupon.DiscountType(strings.TrimSpace(rec[1])),
		IsActive:     true,
	}
	if c.Code == "" || len(c.Code) > maxCodeLen {
		return nil, errors.Errorf("code must be 1..%d characters", maxCodeLen)
	}
	if !c.DiscountType.Valid() {
		return nil, errors.Errorf("unknown discount type %q", rec[1])
	}

	value, err := decimal.NewFromString(strings.TrimSpace(rec[2]))
	if err != nil || !value.IsPositive() {
		return nil, errors.Errorf("value %q must be a positive amount", rec[2])
	}
	if c.DiscountType == coupon.DiscountPercentage && value.GreaterThan(decimal.NewFromInt(100)) {
		return nil, errors.Errorf("percentage %s is above 100", value)
	}
	c.Value = value.Round(2)

	if c.MinPurchase, err = optionalAmount(rec[3]); err != nil {
		return nil, errors.Wrap(err, "min_purchase")
	}
	if c.MaxDiscount, err = optionalAmount(rec[4]); err != nil {
		return nil, errors.Wrap(err, "max_discount")
	}
	if s := strings.TrimSpace(rec[5]); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return nil, errors.Errorf("usage_limit %q must be a positive integer", s)
		}
		c.UsageLimit = &n
	}
	if s := strings.TrimSpace(rec[6]); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, errors.Wrap(err, "expires_at")
		}
		c.ExpiresAt = &t
	}
	return c, nil
}

func optionalAmount(s string) (*decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		return nil, errors.Errorf("%q must be a non-negative amount", s)
	}
	d = d.Round(2)
	return &d, nil
}

// findDuplicates returns the codes present in two or more files without
// holding every code in memory. Pass 1 builds a bloom filter per file; pass 2
// keeps only codes some other file's filter may contain and marks which files
// they were seen in, so bloom false positives drop out when the masks merge.
func findDuplicates(ctx context.Context, files []string, capacity uint) (map[string]struct{}, error) {
	if len(files) > bits.UintSize {
		return nil, errors.Errorf("at most %d files are supported", bits.UintSize)
	}

	filters := make([]*bloom.BloomFilter, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(capacity, bloomFPR)
			var count uint64
			err := streamCampaign(gctx, path, func(_ int, rec []string) error {
				filter.AddString(coupon.NormalizeCode(rec[0]))
				if count++; count%progressEvery == 0 {
					slog.Info("pass 1 progress", slog.String("file", path), slog.Uint64("codes", count))
				}
				return nil
			})
			if err != nil {
				return errors.Wrapf(err, "build filter for %s", path)
			}
			filters[i] = filter
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	masks := make([]map[string]uint, len(files))
	g, gctx = errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			seen := make(map[string]uint)
			bit := uint(1) << uint(i)
			err := streamCampaign(gctx, path, func(_ int, rec []string) error {
				code := coupon.NormalizeCode(rec[0])
				for j, f := range filters {
					if j != i && f.TestString(code) {
						seen[code] |= bit
						break
					}
				}
				return nil
			})
			if err != nil {
				return errors.Wrapf(err, "scan %s", path)
			}
			masks[i] = seen
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]uint)
	for _, m := range masks {
		for code, mask := range m {
			merged[code] |= mask
		}
	}
	dupes := make(map[string]struct{})
	for code, mask := range merged {
		if bits.OnesCount(mask) >= 2 {
			dupes[code] = struct{}{}
		}
	}
	return dupes, nil
}

// Command seed-db loads demo cupcakes, coupons and an address for a demo user.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/cupcake-checkout/internal/domain/coupon"
	"github.com/xenking/cupcake-checkout/internal/handler"
	"github.com/xenking/cupcake-checkout/internal/storage/postgres"
)

type cupcakeJSON struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Stock    int             `json:"stock"`
	IsActive *bool           `json:"isActive"`
}

const (
	upsertCupcakeSQL = `INSERT INTO cupcakes (id, name, price, stock, is_active)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, price = EXCLUDED.price,
		stock = EXCLUDED.stock, is_active = EXCLUDED.is_active`

	upsertAddressSQL = `INSERT INTO addresses (id, user_id, street, city, state, zip_code)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (id) DO NOTHING`

	demoAddressID = "e4d38295-f2b4-45c8-a173-8e9fa0b1c2d7"
)

func main() {
	var (
		databaseURL  string
		cupcakesFile string
		demoUser     string
		authSecret   string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&cupcakesFile, "cupcakes-file", "db/seed/cupcakes.json", "path to cupcakes JSON file")
	flag.StringVar(&demoUser, "demo-user", "demo-user", "user id that owns the demo address")
	flag.StringVar(&authSecret, "auth-secret", "", "auth secret used to print the demo user's signature (or CUPCAKE_AUTH_SECRET env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if authSecret == "" {
		authSecret = os.Getenv("CUPCAKE_AUTH_SECRET")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, cupcakesFile, demoUser); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	attrs := []any{slog.String("user_id", demoUser), slog.String("address_id", demoAddressID)}
	if authSecret != "" {
		attrs = append(attrs, slog.String("signature", handler.Sign([]byte(authSecret), demoUser)))
	}
	slog.Info("seed completed successfully", attrs...)
}

func run(ctx context.Context, databaseURL, cupcakesFile, demoUser string) error {
	slog.Info("running migrations")
	if err := postgres.Migrate(databaseURL); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	slog.Info("connecting to database")
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := seedCupcakes(ctx, pool, cupcakesFile); err != nil {
		return errors.Wrap(err, "seed cupcakes")
	}
	if err := seedCoupons(ctx, postgres.NewCouponStore(pool)); err != nil {
		return errors.Wrap(err, "seed coupons")
	}
	if _, err := pool.Exec(ctx, upsertAddressSQL,
		demoAddressID, demoUser, "Av. Paulista, 1000", "São Paulo", "SP", "01310-100",
	); err != nil {
		return errors.Wrap(err, "seed demo address")
	}
	return nil
}

func seedCupcakes(ctx context.Context, pool *pgxpool.Pool, path string) error {
	slog.Info("reading cupcakes file", slog.String("path", path))

	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read cupcakes file")
	}
	var cupcakes []cupcakeJSON
	if err := json.Unmarshal(data, &cupcakes); err != nil {
		return errors.Wrap(err, "parse cupcakes JSON")
	}

	slog.Info("upserting cupcakes", slog.Int("count", len(cupcakes)))
	for _, c := range cupcakes {
		active := c.IsActive == nil || *c.IsActive
		if _, err := pool.Exec(ctx, upsertCupcakeSQL, c.ID, c.Name, c.Price.Round(2), c.Stock, active); err != nil {
			return errors.Wrapf(err, "upsert cupcake %s", c.ID)
		}
		slog.Info("upserted cupcake", slog.String("id", c.ID), slog.String("name", c.Name))
	}
	return nil
}

func seedCoupons(ctx context.Context, store *postgres.CouponStore) error {
	slog.Info("seeding coupons")

	ptr := func(s string) *decimal.Decimal {
		d := decimal.RequireFromString(s)
		return &d
	}
	limit := func(n int) *int { return &n }
	expired := time.Now().AddDate(0, -1, 0)

	coupons := []coupon.Coupon{
		{Code: "WELCOME10", DiscountType: coupon.DiscountPercentage, Value: decimal.NewFromInt(10), MaxDiscount: ptr("20.00"), IsActive: true},
		{Code: "SWEET5", DiscountType: coupon.DiscountFixed, Value: decimal.NewFromInt(5), MinPurchase: ptr("30.00"), IsActive: true},
		{Code: "FIRST50", DiscountType: coupon.DiscountPercentage, Value: decimal.NewFromInt(50), MaxDiscount: ptr("25.00"), UsageLimit: limit(100), IsActive: true},
		{Code: "SUMMER24", DiscountType: coupon.DiscountPercentage, Value: decimal.NewFromInt(15), IsActive: true, ExpiresAt: &expired},
	}
	for i := range coupons {
		inserted, err := store.Insert(ctx, &coupons[i])
		if err != nil {
			return errors.Wrapf(err, "insert coupon %s", coupons[i].Code)
		}
		slog.Info("seeded coupon", slog.String("code", coupons[i].Code), slog.Bool("inserted", inserted))
	}
	return nil
}

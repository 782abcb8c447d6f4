package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/bistro/internal/domain/auth"
	"github.com/xenking/bistro/internal/domain/product"
	"github.com/xenking/bistro/internal/domain/voucher"
	"github.com/xenking/bistro/internal/storage/postgres"
)

type seedFile struct {
	Users    []userJSON    `json:"users"`
	Products []productJSON `json:"products"`
	Vouchers []voucherJSON `json:"vouchers"`
}

type userJSON struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type productJSON struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Available *bool           `json:"isAvailable"`
}

type voucherJSON struct {
	Code            string          `json:"code"`
	DiscountType    string          `json:"discountType"`
	DiscountAmount  decimal.Decimal `json:"discountAmount"`
	ExpiredAt       *time.Time      `json:"expiredAt"`
	TotalUsageLimit int             `json:"totalUsageLimit"`
}

func main() {
	var (
		databaseURL string
		seedPath    string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&seedPath, "seed-file", "db/seed/seed.json", "path to seed JSON file")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, databaseURL, seedPath); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	lg.Info("Seed completed")
}

func run(ctx context.Context, lg *zap.Logger, databaseURL, seedPath string) error {
	data, err := os.ReadFile(seedPath)
	if err != nil {
		return errors.Wrap(err, "read seed file")
	}
	var seed seedFile
	if err := json.Unmarshal(data, &seed); err != nil {
		return errors.Wrap(err, "parse seed file")
	}

	lg.Info("Running migrations")
	if err := postgres.RunMigrations(databaseURL); err != nil {
		return err
	}

	db, err := postgres.Open(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := seedUsers(ctx, lg, postgres.NewUserRepository(db), seed.Users); err != nil {
		return errors.Wrap(err, "seed users")
	}
	if err := seedProducts(ctx, lg, postgres.NewProductRepository(db), seed.Products); err != nil {
		return errors.Wrap(err, "seed products")
	}
	if err := seedVouchers(ctx, lg, postgres.NewVoucherRepository(db), seed.Vouchers); err != nil {
		return errors.Wrap(err, "seed vouchers")
	}
	return nil
}

func seedUsers(ctx context.Context, lg *zap.Logger, repo *postgres.UserRepository, users []userJSON) error {
	for _, u := range users {
		role, err := auth.ParseRole(u.Role)
		if err != nil {
			return errors.Wrapf(err, "user %q", u.Email)
		}
		if err := repo.Upsert(ctx, postgres.User{
			ID:    u.ID,
			Name:  u.Name,
			Email: u.Email,
			Role:  role,
		}); err != nil {
			return err
		}
	}
	lg.Info("Upserted users", zap.Int("count", len(users)))
	return nil
}

func seedProducts(ctx context.Context, lg *zap.Logger, repo *postgres.ProductRepository, products []productJSON) error {
	for _, p := range products {
		available := p.Available == nil || *p.Available
		if err := repo.Upsert(ctx, product.Product{
			ID:        p.ID,
			Name:      p.Name,
			Price:     p.Price,
			Available: available,
		}); err != nil {
			return err
		}
		lg.Debug("Upserted product", zap.String("id", p.ID), zap.String("name", p.Name))
	}
	lg.Info("Upserted products", zap.Int("count", len(products)))
	return nil
}

func seedVouchers(ctx context.Context, lg *zap.Logger, repo *postgres.VoucherRepository, vouchers []voucherJSON) error {
	now := time.Now()
	for _, v := range vouchers {
		kind, err := voucher.ParseDiscountType(v.DiscountType)
		if err != nil {
			return err
		}
		if err := repo.Upsert(ctx, &voucher.Voucher{
			ID:         uuid.NewString(),
			Code:       voucher.NormalizeCode(v.Code),
			Type:       kind,
			Amount:     v.DiscountAmount,
			ExpiresAt:  v.ExpiredAt,
			UsageLimit: v.TotalUsageLimit,
			Active:     true,
			CreatedAt:  now,
		}); err != nil {
			return err
		}
		lg.Debug("Upserted voucher", zap.String("code", v.Code))
	}
	lg.Info("Upserted vouchers", zap.Int("count", len(vouchers)))
	return nil
}

package main

import (
	"context"
	"encoding/csv"
	"flag"
	"io"
	"math/bits"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/bistro/internal/domain/voucher"
	"github.com/xenking/bistro/internal/storage/postgres"
)

const (
	bloomCapacity = 1_000_000
	bloomFPR      = 0.001
	progressEvery = 100_000
	maxFiles      = 64
)

// row is one voucher line: code,discountType,amount,usageLimit[,expiredAt].
type row struct {
	line  int
	input voucher.Input
}

type upserter interface {
	Upsert(ctx context.Context, v *voucher.Voucher) error
}

func main() {
	var (
		dataDir     string
		pattern     string
		databaseURL string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing voucher exports")
	flag.StringVar(&pattern, "pattern", "*.csv.gz", "glob of voucher exports inside data-dir")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
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

	files, err := filepath.Glob(filepath.Join(dataDir, pattern))
	if err != nil {
		lg.Fatal("Bad pattern", zap.Error(err))
	}
	if len(files) == 0 {
		lg.Fatal("No voucher exports found", zap.String("dir", dataDir), zap.String("pattern", pattern))
	}

	db, err := postgres.Open(ctx, databaseURL)
	if err != nil {
		lg.Fatal("Connect to database", zap.Error(err))
	}
	defer db.Close()

	imported, err := run(ctx, lg, files, postgres.NewVoucherRepository(db))
	if err != nil {
		lg.Fatal("Voucher import failed", zap.Error(err))
	}
	lg.Info("Voucher import completed", zap.Int("imported", imported))
}

func run(ctx context.Context, lg *zap.Logger, files []string, repo upserter) (int, error) {
	if len(files) > maxFiles {
		return 0, errors.Errorf("too many files: %d > %d", len(files), maxFiles)
	}
	sort.Strings(files)

	// Pass 1: one bloom filter per file.
	lg.Info("Building filters", zap.Int("files", len(files)))
	filters, err := buildFilters(ctx, lg, files)
	if err != nil {
		return 0, errors.Wrap(err, "build filters")
	}

	// Pass 2: exact confirmation of codes the filters flag as shared.
	dups, err := findDuplicates(ctx, lg, files, filters)
	if err != nil {
		return 0, errors.Wrap(err, "find duplicates")
	}
	if len(dups) > 0 {
		lg.Warn("Skipping codes present in more than one file", zap.Int("count", len(dups)))
	}

	// Pass 3: upsert everything else.
	imported := 0
	for _, path := range files {
		n, err := importFile(ctx, lg, path, dups, repo)
		if err != nil {
			return imported, errors.Wrapf(err, "import %s", path)
		}
		imported += n
	}
	return imported, nil
}

func buildFilters(ctx context.Context, lg *zap.Logger, files []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
			var count int
			if err := streamFile(ctx, path, func(r row) error {
				filter.AddString(r.input.Code)
				count++
				if count%progressEvery == 0 {
					lg.Info("Pass 1 progress", zap.String("file", path), zap.Int("codes", count))
				}
				return nil
			}); err != nil {
				return err
			}
			filters[i] = filter
			lg.Info("Filter built", zap.String("file", path), zap.Int("codes", count))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// findDuplicates returns the codes that occur in at least two files. Codes
// the filters flag are kept as candidates with a bit per file, so a false
// positive never survives the merge.
func findDuplicates(ctx context.Context, lg *zap.Logger, files []string, filters []*bloom.BloomFilter) (map[string]struct{}, error) {
	candidates := make([]map[string]uint64, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			found := make(map[string]uint64)
			fileBit := uint64(1) << uint(i)
			if err := streamFile(ctx, path, func(r row) error {
				for j, f := range filters {
					if j != i && f.TestString(r.input.Code) {
						found[r.input.Code] |= fileBit
						break
					}
				}
				return nil
			}); err != nil {
				return err
			}
			candidates[i] = found
			lg.Debug("Candidates collected", zap.String("file", path), zap.Int("candidates", len(found)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]uint64)
	for _, found := range candidates {
		for code, mask := range found {
			merged[code] |= mask
		}
	}
	dups := make(map[string]struct{})
	for code, mask := range merged {
		if bits.OnesCount64(mask) >= 2 {
			dups[code] = struct{}{}
		}
	}
	return dups, nil
}

func importFile(ctx context.Context, lg *zap.Logger, path string, skip map[string]struct{}, repo upserter) (int, error) {
	var imported int
	now := time.Now()
	err := streamFile(ctx, path, func(r row) error {
		if _, ok := skip[r.input.Code]; ok {
			return nil
		}
		if err := repo.Upsert(ctx, &voucher.Voucher{
			ID:         uuid.NewString(),
			Code:       r.input.Code,
			Type:       r.input.Type,
			Amount:     r.input.Amount,
			ExpiresAt:  r.input.ExpiresAt,
			UsageLimit: r.input.UsageLimit,
			Active:     true,
			CreatedAt:  now,
		}); err != nil {
			return errors.Wrapf(err, "line %d", r.line)
		}
		imported++
		return nil
	})
	if err != nil {
		return imported, err
	}
	lg.Info("File imported", zap.String("file", path), zap.Int("vouchers", imported))
	return imported, nil
}

// streamFile decodes a gzip-compressed CSV export and calls fn for every
// valid row. A leading header row is skipped.
func streamFile(ctx context.Context, path string, fn func(row) error) error {
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
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	r.ReuseRecord = true

	for line := 1; ; line++ {
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
		if line == 1 && strings.EqualFold(strings.TrimSpace(rec[0]), "code") {
			continue
		}
		in, err := parseRecord(rec)
		if err != nil {
			return errors.Wrapf(err, "%s:%d", path, line)
		}
		if err := fn(row{line: line, input: in}); err != nil {
			return err
		}
	}
}

func parseRecord(rec []string) (voucher.Input, error) {
	if len(rec) < 4 || len(rec) > 5 {
		return voucher.Input{}, errors.Errorf("want 4 or 5 fields, got %d", len(rec))
	}
	kind, err := voucher.ParseDiscountType(rec[1])
	if err != nil {
		return voucher.Input{}, err
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(rec[2]))
	if err != nil {
		return voucher.Input{}, errors.Wrap(err, "amount")
	}
	limit, err := strconv.Atoi(strings.TrimSpace(rec[3]))
	if err != nil {
		return voucher.Input{}, errors.Wrap(err, "usage limit")
	}
	in := voucher.Input{
		Code:       rec[0],
		Type:       kind,
		Amount:     amount,
		UsageLimit: limit,
	}
	if len(rec) == 5 && strings.TrimSpace(rec[4]) != "" {
		at, err := time.Parse(time.RFC3339, strings.TrimSpace(rec[4]))
		if err != nil {
			return voucher.Input{}, errors.Wrap(err, "expiry")
		}
		in.ExpiresAt = &at
	}
	return in.Normalize()
}

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/storage/postgres"
)

const (
	bloomCapacity = 10_000_000
	bloomFPR      = 0.001
	progressEvery = 100_000
	maxLineSize   = 1 << 20
)

// exportedOrder is one line of an order export.
type exportedOrder struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	PaymentStatus string `json:"paymentStatus"`
	PaymentMethod string `json:"paymentMethod"`
	CouponCode    string `json:"couponCode"`
	Items         []struct {
		ProductID string          `json:"productId"`
		VariantID string          `json:"variantId"`
		Quantity  int             `json:"quantity"`
		UnitPrice decimal.Decimal `json:"unitPrice"`
	} `json:"items"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	TotalDiscount decimal.Decimal `json:"totalDiscount"`
	ShippingCost  decimal.Decimal `json:"shippingCost"`
	Tax           decimal.Decimal `json:"tax"`
	FinalTotal    decimal.Decimal `json:"finalTotal"`
	CreatedAt     time.Time       `json:"createdAt"`
	History       []struct {
		Status    string    `json:"status"`
		Timestamp time.Time `json:"timestamp"`
		Notes     string    `json:"notes"`
	} `json:"history"`
}

// orderStore is the part of the order repository the import needs.
type orderStore interface {
	Create(ctx context.Context, o *order.Order) error
	Get(ctx context.Context, id string) (*order.Order, error)
}

type stats struct {
	read       atomic.Int64
	imported   atomic.Int64
	duplicates atomic.Int64
	rejected   atomic.Int64
}

// importer loads exported orders into the store. Every order is checked with
// order.Restore first. Ids already handled in this run are tracked in a bloom
// filter so that repeated ids cost one lookup instead of a failed insert.
type importer struct {
	store  orderStore
	strict bool

	mu   sync.Mutex
	seen *bloom.BloomFilter

	stats stats
}

func newImporter(store orderStore, strict bool, capacity uint) *importer {
	return &importer{
		store:  store,
		strict: strict,
		seen:   bloom.NewWithEstimates(capacity, bloomFPR),
	}
}

func main() {
	var (
		dataDir     string
		databaseURL string
		workers     int
		strict      bool
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing *.jsonl.gz order exports")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&workers, "workers", runtime.NumCPU(), "files imported concurrently")
	flag.BoolVar(&strict, "strict", false, "stop at the first invalid order")
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

	if err := run(ctx, dataDir, databaseURL, max(workers, 1), strict); err != nil {
		slog.Error("order import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("order import completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL string, workers int, strict bool) error {
	files := flag.Args()
	if len(files) == 0 {
		var err error
		if files, err = filepath.Glob(filepath.Join(dataDir, "*.jsonl.gz")); err != nil {
			return errors.Wrap(err, "list export files")
		}
	}
	if len(files) == 0 {
		slog.Info("no export files found", slog.String("dir", dataDir))
		return nil
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL, postgres.PoolOptions{MaxConns: int32(workers) + 1})
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	im := newImporter(postgres.NewOrderRepository(pool), strict, bloomCapacity)
	start := time.Now()
	err = im.importFiles(ctx, files, workers)

	slog.Info("import summary",
		slog.Int("files", len(files)),
		slog.Int64("read", im.stats.read.Load()),
		slog.Int64("imported", im.stats.imported.Load()),
		slog.Int64("duplicates", im.stats.duplicates.Load()),
		slog.Int64("rejected", im.stats.rejected.Load()),
		slog.Duration("took", time.Since(start)),
	)
	return err
}

// importFiles imports up to workers files at a time.
func (im *importer) importFiles(ctx context.Context, files []string, workers int) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, f := range files {
		g.Go(func() error {
			return im.importFile(ctx, f)
		})
	}
	return g.Wait()
}

func (im *importer) importFile(ctx context.Context, path string) error {
	var line int
	err := streamGzFile(ctx, path, func(data []byte) error {
		line++
		if n := im.stats.read.Add(1); n%progressEvery == 0 {
			slog.Info("import progress", slog.Int64("read", n))
		}

		o, err := decodeOrder(data)
		if err == nil {
			err = im.importOrder(ctx, o)
		}
		var rErr *order.RestoreError
		switch {
		case err == nil:
			return nil
		case errors.As(err, &rErr), errors.Is(err, errMalformed):
			im.stats.rejected.Add(1)
			slog.Warn("order rejected",
				slog.String("file", path),
				slog.Int("line", line),
				slog.String("reason", err.Error()),
			)
			if im.strict {
				return errors.Wrapf(err, "line %d", line)
			}
			return nil
		default:
			return errors.Wrapf(err, "line %d", line)
		}
	})
	if err != nil {
		return errors.Wrapf(err, "import %s", filepath.Base(path))
	}

	slog.Info("file complete", slog.String("file", path), slog.Int("lines", line))
	return nil
}

// importOrder stores o unless its id was already imported.
func (im *importer) importOrder(ctx context.Context, o *order.Order) error {
	if im.maybeSeen(o.ID) {
		_, err := im.store.Get(ctx, o.ID)
		switch {
		case err == nil:
			im.stats.duplicates.Add(1)
			return nil
		case !errors.Is(err, order.ErrNotFound):
			return errors.Wrap(err, "lookup order")
		}
	}

	if err := order.Restore(o); err != nil {
		return err
	}

	switch err := im.store.Create(ctx, o); {
	case errors.Is(err, postgres.ErrOrderExists):
		im.stats.duplicates.Add(1)
	case err != nil:
		return errors.Wrap(err, "create order")
	default:
		im.stats.imported.Add(1)
	}
	return nil
}

// maybeSeen records id and reports whether it may have been recorded before.
func (im *importer) maybeSeen(id string) bool {
	im.mu.Lock()
	defer im.mu.Unlock()
	return im.seen.TestOrAddString(id)
}

var errMalformed = errors.New("malformed order line")

func decodeOrder(data []byte) (*order.Order, error) {
	var e exportedOrder
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, errors.Wrap(errMalformed, err.Error())
	}

	o := &order.Order{
		ID:            e.ID,
		Status:        order.Status(e.Status),
		CouponCode:    e.CouponCode,
		Subtotal:      e.Subtotal,
		TotalDiscount: e.TotalDiscount,
		ShippingCost:  e.ShippingCost,
		Tax:           e.Tax,
		FinalTotal:    e.FinalTotal,
		CreatedAt:     e.CreatedAt,
	}
	if e.PaymentStatus != "" {
		ps, err := order.ParsePaymentStatus(e.PaymentStatus)
		if err != nil {
			return nil, errors.Wrap(errMalformed, err.Error())
		}
		o.PaymentStatus = ps
	}
	if e.PaymentMethod != "" {
		pm, err := order.ParsePaymentMethod(e.PaymentMethod)
		if err != nil {
			return nil, errors.Wrap(errMalformed, err.Error())
		}
		o.PaymentMethod = pm
	}
	for _, it := range e.Items {
		o.Items = append(o.Items, order.OrderItem{
			ProductID: it.ProductID,
			VariantID: it.VariantID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		})
	}
	for _, h := range e.History {
		st, err := order.ParseStatus(h.Status)
		if err != nil {
			return nil, errors.Wrap(errMalformed, err.Error())
		}
		o.History = append(o.History, order.StatusEntry{
			Status:    st,
			Timestamp: h.Timestamp,
			Notes:     h.Notes,
		})
	}
	return o, nil
}

// streamGzFile opens a gzip-compressed file and calls fn for each non-empty
// line. The slice passed to fn is only valid during the call.
func streamGzFile(ctx context.Context, path string, fn func(line []byte) error) error {
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

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if len(scanner.Bytes()) == 0 {
			continue
		}
		if err := fn(scanner.Bytes()); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}

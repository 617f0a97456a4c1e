// Command audit-export dumps the order status audit trail to gzip
// compressed NDJSON, one file per UTC day.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/lojavirtual/orderflow/internal/domain/order"
	"github.com/lojavirtual/orderflow/internal/storage/postgres"
)

const progressEvery = 100_000

// TransitionStreamer yields audit rows created in [from, to) in commit order.
type TransitionStreamer interface {
	StreamTransitions(ctx context.Context, from, to time.Time, fn func(order.Transition) error) error
}

func main() {
	var (
		databaseURL string
		outDir      string
		fromFlag    string
		toFlag      string
		parallel    int
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&outDir, "out", "audit", "output directory")
	flag.StringVar(&fromFlag, "from", "", "first day to export, YYYY-MM-DD (default yesterday)")
	flag.StringVar(&toFlag, "to", "", "last day to export, inclusive, YYYY-MM-DD (default from)")
	flag.IntVar(&parallel, "parallel", 4, "days exported concurrently")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	days, err := dayRange(fromFlag, toFlag, time.Now())
	if err != nil {
		slog.Error("invalid range", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, outDir, days, parallel); err != nil {
		slog.Error("audit export failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("audit export completed successfully", slog.Int("days", len(days)))
}

func run(ctx context.Context, databaseURL, outDir string, days []time.Time, parallel int) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return errors.Wrap(err, "create output directory")
	}

	pool, err := postgres.NewPool(ctx, databaseURL, postgres.PoolConfig{MaxConns: int32(max(parallel, 1))})
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	return exportDays(ctx, postgres.NewOrderRepository(pool), outDir, days, parallel)
}

// exportDays writes one file per day, up to parallel days at a time.
func exportDays(ctx context.Context, src TransitionStreamer, outDir string, days []time.Time, parallel int) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(parallel, 1))
	for _, day := range days {
		g.Go(func() error {
			path := filepath.Join(outDir, fmt.Sprintf("transitions-%s.ndjson.gz", day.Format(time.DateOnly)))
			n, err := exportDay(ctx, src, path, day)
			if err != nil {
				return errors.Wrapf(err, "export %s", day.Format(time.DateOnly))
			}
			slog.Info("day exported",
				slog.String("day", day.Format(time.DateOnly)),
				slog.String("path", path),
				slog.Int("rows", n),
			)
			return nil
		})
	}
	return g.Wait()
}

// exportDay writes to a temporary file and renames it on success, so a
// partial export never looks complete.
func exportDay(ctx context.Context, src TransitionStreamer, path string, day time.Time) (rows int, rerr error) {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return 0, errors.Wrap(err, "create file")
	}
	defer func() {
		if rerr != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()

	zw := pgzip.NewWriter(f)
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	err = src.StreamTransitions(ctx, day, day.AddDate(0, 0, 1), func(t order.Transition) error {
		e.Reset()
		encodeTransition(e, t)
		e.RawStr("\n")
		if _, err := zw.Write(e.Bytes()); err != nil {
			return errors.Wrap(err, "write row")
		}
		rows++
		if rows%progressEvery == 0 {
			slog.Info("export progress", slog.String("day", day.Format(time.DateOnly)), slog.Int("rows", rows))
		}
		return nil
	})
	if err != nil {
		return rows, err
	}
	if err := zw.Close(); err != nil {
		return rows, errors.Wrap(err, "close gzip")
	}
	if err := f.Close(); err != nil {
		return rows, errors.Wrap(err, "close file")
	}
	if err := os.Rename(tmp, path); err != nil {
		return rows, errors.Wrap(err, "rename")
	}
	return rows, nil
}

func encodeTransition(e *jx.Encoder, t order.Transition) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(t.ID)
	e.FieldStart("order_id")
	e.Int64(t.OrderID)
	e.FieldStart("previous_status")
	if t.FromStatus == "" {
		e.Null()
	} else {
		e.Str(string(t.FromStatus))
	}
	e.FieldStart("new_status")
	e.Str(string(t.ToStatus))
	e.FieldStart("previous_payment_status")
	if t.FromPayment == "" {
		e.Null()
	} else {
		e.Str(string(t.FromPayment))
	}
	e.FieldStart("payment_status")
	e.Str(string(t.ToPayment))
	e.FieldStart("payment_id")
	e.Str(t.PaymentID)
	e.FieldStart("actor")
	e.Str(t.Actor.String())
	e.FieldStart("note")
	e.Str(t.Note)
	e.FieldStart("created_at")
	e.Str(t.CreatedAt.UTC().Format(time.RFC3339Nano))
	e.ObjEnd()
}

// dayRange returns the UTC days from..to inclusive. An empty from means
// yesterday; an empty to means from.
func dayRange(from, to string, now time.Time) ([]time.Time, error) {
	start := now.UTC().Truncate(24*time.Hour).AddDate(0, 0, -1)
	if from != "" {
		t, err := time.Parse(time.DateOnly, from)
		if err != nil {
			return nil, errors.Wrap(err, "parse from")
		}
		start = t
	}
	end := start
	if to != "" {
		t, err := time.Parse(time.DateOnly, to)
		if err != nil {
			return nil, errors.Wrap(err, "parse to")
		}
		end = t
	}
	if end.Before(start) {
		return nil, errors.Errorf("to %s is before from %s", end.Format(time.DateOnly), start.Format(time.DateOnly))
	}

	var days []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days, nil
}

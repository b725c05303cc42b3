package perfstore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/cloudsearch/internal/search"
	"github.com/banshee-data/cloudsearch/internal/search/autotune"
	"github.com/banshee-data/cloudsearch/internal/timeutil"
	"github.com/banshee-data/cloudsearch/internal/version"
)

// ErrNotFound is returned when a report id is unknown.
var ErrNotFound = errors.New("report not found")

// Store is a SQLite-backed report store.
type Store struct {
	db    *sql.DB
	clock timeutil.Clock
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used to age out history.
func WithClock(c timeutil.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// Open opens (or creates) the database at path and migrates it to the latest
// schema. Use ":memory:" for a throwaway store.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// A single connection keeps in-memory databases coherent and serialises
	// writers.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	s := &Store{db: db, clock: timeutil.RealClock{}}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Save persists a measured report. Reports without fresh timings (short
// circuit or history hits) are ignored.
func (s *Store) Save(r *autotune.Report) error {
	if r == nil || !r.Measured() {
		return nil
	}
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	created := r.CreatedAt
	if created.IsZero() {
		created = s.clock.Now()
	}
	w := r.Workload
	b := w.Bucket()
	reportID := uuid.New().String()

	return retryOnBusy(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		_, err = tx.Exec(`
			INSERT INTO search_reports (
				report_id, query_type, points, dim, metric, size_class, k, radius,
				best, report_json, created_at, host_version, excluded_count
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			reportID, w.QueryType.String(), w.Points, w.Dim, b.Metric, b.SizeClass, w.K, w.Radius,
			r.Best.String(), string(body), created.UnixNano(), version.Version, len(r.Excluded),
		)
		if err != nil {
			return fmt.Errorf("insert report: %w", err)
		}
		for rank, rec := range r.Records {
			_, err = tx.Exec(`
				INSERT INTO search_records (
					record_id, report_id, rank, strategy, build_ns, median_ns,
					mean_ns, stddev_ns, per_query_ns, passes, verified
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				uuid.New().String(), reportID, rank, rec.Kind.String(), int64(rec.Build), int64(rec.Median),
				int64(rec.Mean), int64(rec.StdDev), int64(rec.PerQuery), rec.Passes, rec.Verified,
			)
			if err != nil {
				return fmt.Errorf("insert record: %w", err)
			}
		}
		return tx.Commit()
	})
}

// Best returns the winner of the most recent report in the bucket that is no
// older than maxAge. maxAge <= 0 accepts reports of any age. An empty
// bucket metric means euclidean.
func (s *Store) Best(b autotune.Bucket, maxAge time.Duration) (search.Kind, bool, error) {
	since := int64(0)
	if maxAge > 0 {
		since = s.clock.Now().Add(-maxAge).UnixNano()
	}
	var best string
	err := s.db.QueryRow(`
		SELECT best FROM search_reports
		WHERE query_type = ? AND dim = ? AND metric = ? AND size_class = ? AND created_at >= ?
		ORDER BY created_at DESC
		LIMIT 1`,
		b.QueryType.String(), b.Dim, autotune.MetricName(b.Metric), b.SizeClass, since,
	).Scan(&best)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("query best strategy: %w", err)
	}
	kind, err := search.ParseKind(best)
	if err != nil {
		return 0, false, err
	}
	return kind, true, nil
}

// Summary is one row of the report listing.
type Summary struct {
	ReportID  string
	Workload  autotune.Workload
	Best      search.Kind
	Excluded  int
	Version   string
	CreatedAt time.Time
}

// List returns the most recent reports first. limit <= 0 returns all.
func (s *Store) List(limit int) ([]Summary, error) {
	q := `
		SELECT report_id, query_type, points, dim, metric, k, radius, best,
		       excluded_count, host_version, created_at
		FROM search_reports
		ORDER BY created_at DESC`
	var args []interface{}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("query reports: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			sum       Summary
			qt, best  string
			createdNs int64
		)
		if err := rows.Scan(&sum.ReportID, &qt, &sum.Workload.Points, &sum.Workload.Dim,
			&sum.Workload.Metric, &sum.Workload.K, &sum.Workload.Radius, &best, &sum.Excluded, &sum.Version, &createdNs); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		if sum.Workload.QueryType, err = autotune.ParseQueryType(qt); err != nil {
			return nil, err
		}
		if sum.Best, err = search.ParseKind(best); err != nil {
			return nil, err
		}
		sum.CreatedAt = time.Unix(0, createdNs).UTC()
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Get returns the full report stored under id.
func (s *Store) Get(reportID string) (*autotune.Report, error) {
	var body string
	err := s.db.QueryRow(`SELECT report_json FROM search_reports WHERE report_id = ?`, reportID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, reportID)
	}
	if err != nil {
		return nil, fmt.Errorf("query report: %w", err)
	}
	var r autotune.Report
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", reportID, err)
	}
	return &r, nil
}

// Prune deletes reports older than maxAge and returns how many were removed.
func (s *Store) Prune(maxAge time.Duration) (int64, error) {
	cutoff := s.clock.Now().Add(-maxAge).UnixNano()
	var n int64
	err := retryOnBusy(func() error {
		res, err := s.db.Exec(`DELETE FROM search_reports WHERE created_at < ?`, cutoff)
		if err != nil {
			return fmt.Errorf("prune reports: %w", err)
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}

// retryOnBusy retries fn a few times when SQLite reports a locked database.
func retryOnBusy(fn func() error) error {
	const attempts = 5
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil || !isBusy(err) {
			return err
		}
		time.Sleep(time.Duration(i+1) * 20 * time.Millisecond)
	}
	return err
}

func isBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

var (
	_ autotune.Recorder = (*Store)(nil)
	_ autotune.History  = (*Store)(nil)
)

package tracking

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	model TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS metrics (
	run_id TEXT NOT NULL,
	name TEXT NOT NULL,
	value REAL NOT NULL,
	PRIMARY KEY (run_id, name),
	FOREIGN KEY (run_id) REFERENCES runs(id)
);

CREATE TABLE IF NOT EXISTS model_versions (
	name TEXT NOT NULL,
	version INTEGER NOT NULL,
	run_id TEXT NOT NULL,
	created_at TEXT NOT NULL,
	PRIMARY KEY (name, version)
);
`

// SQLiteTracker stores runs and a model registry in a SQLite database.
type SQLiteTracker struct {
	db *sql.DB
}

func NewSQLiteTracker(path string) (*SQLiteTracker, error) {
	if path == "" {
		return nil, errors.New("sqlite tracker needs a database path")
	}
	if dir := filepath.Dir(path); dir != "." {
		err := os.MkdirAll(dir, 0o755)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to create %s", dir)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(10000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	db.SetMaxOpenConns(1)

	err = db.Ping()
	if err != nil {
		db.Close()

		return nil, errors.Wrap(err, "failed to connect to database")
	}
	_, err = db.Exec(schema)
	if err != nil {
		db.Close()

		return nil, errors.Wrap(err, "failed to initialize schema")
	}

	return &SQLiteTracker{db: db}, nil
}

func (s *SQLiteTracker) LogMetrics(ctx context.Context, runID, model string, metrics map[string]float64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "unable to begin transaction")
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, model, created_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET model = excluded.model`,
		runID, model, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return errors.Wrap(err, "unable to insert run")
	}
	for name, value := range metrics {
		_, err = tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO metrics (run_id, name, value) VALUES (?, ?, ?)`,
			runID, name, value)
		if err != nil {
			return errors.Wrapf(err, "unable to insert metric %s", name)
		}
	}

	return errors.Wrap(tx.Commit(), "unable to commit run")
}

// RegisterModel adds the next version of name.
func (s *SQLiteTracker) RegisterModel(ctx context.Context, runID, name string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "unable to begin transaction")
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var version int
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) + 1 FROM model_versions WHERE name = ?`, name).Scan(&version)
	if err != nil {
		return 0, errors.Wrap(err, "unable to read latest version")
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO model_versions (name, version, run_id, created_at) VALUES (?, ?, ?, ?)`,
		name, version, runID, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, errors.Wrap(err, "unable to insert model version")
	}
	err = tx.Commit()
	if err != nil {
		return 0, errors.Wrap(err, "unable to commit model version")
	}

	return version, nil
}

func (s *SQLiteTracker) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.model, r.created_at, COALESCE(MAX(v.version), 0)
		FROM runs r LEFT JOIN model_versions v ON v.run_id = r.id
		GROUP BY r.id, r.model, r.created_at`)
	if err != nil {
		return nil, errors.Wrap(err, "unable to query runs")
	}
	defer rows.Close()

	var runs []Run
	index := map[string]int{}
	for rows.Next() {
		var (
			run     Run
			created string
		)
		err = rows.Scan(&run.ID, &run.Model, &created, &run.Version)
		if err != nil {
			return nil, errors.Wrap(err, "unable to scan run")
		}
		run.Time, err = time.Parse(time.RFC3339Nano, created)
		if err != nil {
			return nil, errors.Wrapf(err, "run %s has an invalid time", run.ID)
		}
		run.Metrics = map[string]float64{}
		index[run.ID] = len(runs)
		runs = append(runs, run)
	}
	if err = rows.Err(); err != nil {
		return nil, errors.Wrap(err, "unable to iterate runs")
	}

	mrows, err := s.db.QueryContext(ctx, `SELECT run_id, name, value FROM metrics`)
	if err != nil {
		return nil, errors.Wrap(err, "unable to query metrics")
	}
	defer mrows.Close()
	for mrows.Next() {
		var (
			runID, name string
			value       float64
		)
		err = mrows.Scan(&runID, &name, &value)
		if err != nil {
			return nil, errors.Wrap(err, "unable to scan metric")
		}
		if i, ok := index[runID]; ok {
			runs[i].Metrics[name] = value
		}
	}
	if err = mrows.Err(); err != nil {
		return nil, errors.Wrap(err, "unable to iterate metrics")
	}
	sortRuns(runs)

	return runs, nil
}

func (s *SQLiteTracker) Close() error {
	return s.db.Close()
}

var (
	_ Tracker  = (*SQLiteTracker)(nil)
	_ Registry = (*SQLiteTracker)(nil)
)

// Package sqlite persists fit runs, parameter summaries, and evaluation
// metrics in an embedded database, so completed fits can be reloaded and
// compared without refitting.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"bayesprev/domain/core"
	"bayesprev/domain/fit"
	"bayesprev/ports"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	created_at   TIMESTAMP NOT NULL,
	status       TEXT NOT NULL,
	diagnostics  TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS summaries (
	run_id   TEXT NOT NULL REFERENCES runs(id),
	name     TEXT NOT NULL,
	mean     REAL NOT NULL,
	std_dev  REAL NOT NULL,
	hdi_low  REAL NOT NULL,
	hdi_high REAL NOT NULL,
	r_hat    REAL,
	ess      REAL,
	PRIMARY KEY (run_id, name)
);
CREATE TABLE IF NOT EXISTS evaluations (
	run_id       TEXT NOT NULL REFERENCES runs(id),
	split        TEXT NOT NULL,
	rmse         REAL,
	mae          REAL,
	mape         REAL,
	mape_skipped INTEGER NOT NULL,
	mape_err     TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, split)
);`

// fitStore implements the FitStore interface over an embedded sqlite file
type fitStore struct {
	db *sqlx.DB
}

// NewFitStore opens (and migrates) the store at path. Use ":memory:" for an
// ephemeral store in tests.
func NewFitStore(path string) (ports.FitStore, error) {
	db, err := sqlx.Connect("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open fit store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate fit store: %w", err)
	}
	return &fitStore{db: db}, nil
}

// SaveResult inserts a run with its summaries and evaluations atomically
func (s *fitStore) SaveResult(ctx context.Context, result *fit.Result) error {
	diagJSON, err := json.Marshal(result.Diagnostics)
	if err != nil {
		return fmt.Errorf("failed to marshal diagnostics: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, created_at, status, diagnostics) VALUES (?, ?, ?, ?)`,
		result.RunID.String(), result.CreatedAt.Time(), string(result.Status), string(diagJSON))
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	for _, ps := range result.Summaries {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO summaries (run_id, name, mean, std_dev, hdi_low, hdi_high, r_hat, ess)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			result.RunID.String(), ps.Name.String(), ps.Mean, ps.StdDev, ps.HDILow, ps.HDIHigh,
			nanToNull(float64(ps.RHat)), nanToNull(float64(ps.ESS)))
		if err != nil {
			return fmt.Errorf("failed to insert summary for %s: %w", ps.Name, err)
		}
	}

	for _, ev := range []*fit.Evaluation{result.Train, result.Test} {
		if ev == nil {
			continue
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO evaluations (run_id, split, rmse, mae, mape, mape_skipped, mape_err)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			result.RunID.String(), ev.Split, nanToNull(float64(ev.RMSE)), nanToNull(float64(ev.MAE)),
			nanToNull(float64(ev.MAPE)), ev.MAPESkipped, ev.MAPEErr)
		if err != nil {
			return fmt.Errorf("failed to insert %s evaluation: %w", ev.Split, err)
		}
	}

	return tx.Commit()
}

// GetResult loads one run with its summaries and evaluations
func (s *fitStore) GetResult(ctx context.Context, runID core.RunID) (*fit.Result, error) {
	var row struct {
		ID          string    `db:"id"`
		CreatedAt   time.Time `db:"created_at"`
		Status      string    `db:"status"`
		Diagnostics string    `db:"diagnostics"`
	}
	err := s.db.GetContext(ctx, &row, `SELECT id, created_at, status, diagnostics FROM runs WHERE id = ?`, runID.String())
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: %s", core.ErrFitNotFound, runID)
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	result := &fit.Result{
		RunID:     core.RunID(row.ID),
		CreatedAt: core.NewTimestamp(row.CreatedAt),
		Status:    fit.Status(row.Status),
	}
	if err := json.Unmarshal([]byte(row.Diagnostics), &result.Diagnostics); err != nil {
		return nil, fmt.Errorf("failed to unmarshal diagnostics: %w", err)
	}

	var summaries []summaryRow
	err = s.db.SelectContext(ctx, &summaries,
		`SELECT name, mean, std_dev, hdi_low, hdi_high, r_hat, ess FROM summaries WHERE run_id = ? ORDER BY rowid`,
		runID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get summaries: %w", err)
	}
	for _, sr := range summaries {
		result.Summaries = append(result.Summaries, sr.toSummary())
	}

	var evals []evalRow
	err = s.db.SelectContext(ctx, &evals,
		`SELECT split, rmse, mae, mape, mape_skipped, mape_err FROM evaluations WHERE run_id = ?`,
		runID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get evaluations: %w", err)
	}
	for _, er := range evals {
		ev := er.toEvaluation()
		switch ev.Split {
		case "train":
			result.Train = ev
		case "test":
			result.Test = ev
		}
	}

	return result, nil
}

// ListRuns returns run headers, newest first, without summaries
func (s *fitStore) ListRuns(ctx context.Context) ([]fit.Result, error) {
	var rows []struct {
		ID        string    `db:"id"`
		CreatedAt time.Time `db:"created_at"`
		Status    string    `db:"status"`
	}
	err := s.db.SelectContext(ctx, &rows, `SELECT id, created_at, status FROM runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	out := make([]fit.Result, len(rows))
	for i, r := range rows {
		out[i] = fit.Result{
			RunID:     core.RunID(r.ID),
			CreatedAt: core.NewTimestamp(r.CreatedAt),
			Status:    fit.Status(r.Status),
		}
	}
	return out, nil
}

func (s *fitStore) Close() error {
	return s.db.Close()
}

type summaryRow struct {
	Name    string          `db:"name"`
	Mean    float64         `db:"mean"`
	StdDev  float64         `db:"std_dev"`
	HDILow  float64         `db:"hdi_low"`
	HDIHigh float64         `db:"hdi_high"`
	RHat    sql.NullFloat64 `db:"r_hat"`
	ESS     sql.NullFloat64 `db:"ess"`
}

func (r summaryRow) toSummary() fit.ParamSummary {
	return fit.ParamSummary{
		Name:    core.ParamName(r.Name),
		Mean:    r.Mean,
		StdDev:  r.StdDev,
		HDILow:  r.HDILow,
		HDIHigh: r.HDIHigh,
		RHat:    fit.Metric(nullToNaN(r.RHat)),
		ESS:     fit.Metric(nullToNaN(r.ESS)),
	}
}

type evalRow struct {
	Split       string          `db:"split"`
	RMSE        sql.NullFloat64 `db:"rmse"`
	MAE         sql.NullFloat64 `db:"mae"`
	MAPE        sql.NullFloat64 `db:"mape"`
	MAPESkipped int             `db:"mape_skipped"`
	MAPEErr     string          `db:"mape_err"`
}

func (r evalRow) toEvaluation() *fit.Evaluation {
	return &fit.Evaluation{
		Split:       r.Split,
		RMSE:        fit.Metric(nullToNaN(r.RMSE)),
		MAE:         fit.Metric(nullToNaN(r.MAE)),
		MAPE:        fit.Metric(nullToNaN(r.MAPE)),
		MAPESkipped: r.MAPESkipped,
		MAPEErr:     r.MAPEErr,
	}
}

// SQLite has no NaN; unavailable diagnostics round-trip through NULL
func nanToNull(v float64) interface{} {
	if v != v {
		return nil
	}
	return v
}

func nullToNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/example/priority-ride/internal/models"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	// quick ping
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) Close() error { return p.db.Close() }

// Migrate applies a schema file's statements as a single exec.
func (p *PostgresStore) Migrate(ctx context.Context, schema string) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (p *PostgresStore) SaveRide(ctx context.Context, e *models.RideLogEntry) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO ride_log(id, run_id, account_key, account_name, ride_id, prescheduled_ride_id, ride_type, source, priority_for_key, cancelled, cancelled_at, created_at) VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		e.ID, e.RunID, e.AccountKey, e.AccountName, e.RideID, e.PrescheduledRideID, string(e.RideType), e.Source, e.PriorityForKey, e.Cancelled, e.CancelledAt, e.CreatedAt)
	return err
}

func (p *PostgresStore) MarkCancelled(ctx context.Context, accountKey string, rideID int64, at time.Time) error {
	res, err := p.db.ExecContext(ctx, `UPDATE ride_log SET cancelled=true, cancelled_at=$1 WHERE account_key=$2 AND cancelled=false AND (ride_id=$3 OR prescheduled_ride_id=$3)`, at, accountKey, rideID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) ListRides(ctx context.Context, f RideFilter) ([]models.RideLogEntry, error) {
	q := `SELECT id, run_id, account_key, account_name, ride_id, prescheduled_ride_id, ride_type, source, priority_for_key, cancelled, cancelled_at, created_at FROM ride_log WHERE ($1 = '' OR account_key = $1) AND (NOT $2 OR cancelled = false) ORDER BY created_at DESC`
	args := []any{f.AccountKey, f.ActiveOnly}
	if f.Limit > 0 {
		q += ` LIMIT $3`
		args = append(args, f.Limit)
	}
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.RideLogEntry
	for rows.Next() {
		var (
			e           models.RideLogEntry
			rideID      sql.NullInt64
			preID       sql.NullInt64
			rideType    string
			cancelledAt sql.NullTime
		)
		if err := rows.Scan(&e.ID, &e.RunID, &e.AccountKey, &e.AccountName, &rideID, &preID, &rideType, &e.Source, &e.PriorityForKey, &e.Cancelled, &cancelledAt, &e.CreatedAt); err != nil {
			return nil, err
		}
		if rideID.Valid {
			v := rideID.Int64
			e.RideID = &v
		}
		if preID.Valid {
			v := preID.Int64
			e.PrescheduledRideID = &v
		}
		if cancelledAt.Valid {
			t := cancelledAt.Time
			e.CancelledAt = &t
		}
		e.RideType = models.RideType(rideType)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (p *PostgresStore) AppendRunLine(ctx context.Context, runID, line string) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO run_log(run_id, line, created_at) VALUES($1,$2,$3)`, runID, line, time.Now())
	return err
}

func (p *PostgresStore) RunLines(ctx context.Context, runID string) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT line FROM run_log WHERE run_id=$1 ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return nil, err
		}
		out = append(out, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

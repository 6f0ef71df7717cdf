package activities

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{
		db: db,
	}
}

func (r *Repo) Add(ctx context.Context, activity Activity) (int, error) {
	row := r.db.QueryRow(
		ctx,
		`INSERT INTO activities
			(athlete_id, date, sport, title, duration_min, tss, source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		RETURNING id;`,
		activity.AthleteID, activity.Date, activity.Sport, activity.Title,
		activity.DurationMin, activity.TSS, activity.Source,
	)

	var id int
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("row scan: %w", err)
	}
	return id, nil
}

// ExistsDuplicate reports whether the athlete already has an activity
// with the same date, sport and duration. Used as the idempotency check
// for imports that can replay the same rows.
func (r *Repo) ExistsDuplicate(ctx context.Context, activity Activity) (bool, error) {
	row := r.db.QueryRow(
		ctx,
		`SELECT EXISTS (
			SELECT 1 FROM activities
			WHERE athlete_id = $1 AND date = $2 AND sport = $3 AND duration_min = $4
		);`,
		activity.AthleteID, activity.Date, activity.Sport, activity.DurationMin,
	)

	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, fmt.Errorf("row scan: %w", err)
	}
	return exists, nil
}

// TrailingSumTSS sums the stress of activities within the window of
// windowDays ending at asOf, inclusive. Activities dated after asOf do
// not count.
func (r *Repo) TrailingSumTSS(
	ctx context.Context,
	athleteID int,
	asOf time.Time,
	windowDays int,
) (float64, error) {
	windowStart := asOf.AddDate(0, 0, -(windowDays - 1))
	row := r.db.QueryRow(
		ctx,
		`SELECT COALESCE(SUM(tss), 0) FROM activities
		WHERE athlete_id = $1 AND date >= $2 AND date <= $3;`,
		athleteID, windowStart, asOf,
	)

	var sum float64
	if err := row.Scan(&sum); err != nil {
		return 0, fmt.Errorf("row scan: %w", err)
	}
	return sum, nil
}

func (r *Repo) ListRecent(ctx context.Context, athleteID, limit int) ([]Activity, error) {
	rows, err := r.db.Query(
		ctx,
		`SELECT id, athlete_id, date, sport, COALESCE(title, ''), duration_min, tss, COALESCE(source, ''), created_at
		FROM activities
		WHERE athlete_id = $1
		ORDER BY date DESC, id DESC
		LIMIT $2;`,
		athleteID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanActivities(rows)
}

// ListRange returns the athlete's activities within [from, to], ordered
// by date ascending. Feeds the rolling load computation.
func (r *Repo) ListRange(
	ctx context.Context,
	athleteID int,
	from, to time.Time,
) ([]Activity, error) {
	rows, err := r.db.Query(
		ctx,
		`SELECT id, athlete_id, date, sport, COALESCE(title, ''), duration_min, tss, COALESCE(source, ''), created_at
		FROM activities
		WHERE athlete_id = $1 AND date >= $2 AND date <= $3
		ORDER BY date ASC, id ASC;`,
		athleteID, from, to,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanActivities(rows)
}

type pgxRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanActivities(rows pgxRows) ([]Activity, error) {
	var activities []Activity
	for rows.Next() {
		var a Activity
		if err := rows.Scan(
			&a.ID, &a.AthleteID, &a.Date, &a.Sport, &a.Title,
			&a.DurationMin, &a.TSS, &a.Source, &a.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("rows scan: %w", err)
		}
		activities = append(activities, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return activities, nil
}

package bodymetrics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
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

// Upsert merges the observation into the athlete's row for that day.
// Fields left nil keep any previously stored value.
func (r *Repo) Upsert(ctx context.Context, obs Observation) error {
	if obs.Date.IsZero() {
		return errors.New("observation date empty")
	}

	var ftpSource *string
	if obs.FTPSource != "" {
		ftpSource = &obs.FTPSource
	}

	_, err := r.db.Exec(
		ctx,
		`INSERT INTO body_metrics
			(athlete_id, date, weight_kg, bodyfat_pct, vo2max_mlkgmin, resting_hr_bpm, ftp_w, hrv_ms, sleep_min, ftp_source)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (athlete_id, date) DO UPDATE SET
			weight_kg      = COALESCE(EXCLUDED.weight_kg, body_metrics.weight_kg),
			bodyfat_pct    = COALESCE(EXCLUDED.bodyfat_pct, body_metrics.bodyfat_pct),
			vo2max_mlkgmin = COALESCE(EXCLUDED.vo2max_mlkgmin, body_metrics.vo2max_mlkgmin),
			resting_hr_bpm = COALESCE(EXCLUDED.resting_hr_bpm, body_metrics.resting_hr_bpm),
			ftp_w          = COALESCE(EXCLUDED.ftp_w, body_metrics.ftp_w),
			hrv_ms         = COALESCE(EXCLUDED.hrv_ms, body_metrics.hrv_ms),
			sleep_min      = COALESCE(EXCLUDED.sleep_min, body_metrics.sleep_min),
			ftp_source     = COALESCE(EXCLUDED.ftp_source, body_metrics.ftp_source);`,
		obs.AthleteID, obs.Date,
		obs.WeightKg, obs.BodyFatPct, obs.VO2Max, obs.RestingHR, obs.FTPw,
		obs.HRVms, obs.SleepMin, ftpSource,
	)
	return err
}

// LatestNonNull returns the value of the field from the most recent day
// where it was observed. found == false when the athlete never had the
// field observed.
func (r *Repo) LatestNonNull(
	ctx context.Context,
	athleteID int,
	field Field,
) (date time.Time, value float64, found bool, err error) {
	column := field.column()
	if column == "" {
		return time.Time{}, 0, false, fmt.Errorf("%w: %s", ErrUnknownField, field)
	}

	row := r.db.QueryRow(
		ctx,
		fmt.Sprintf(
			`SELECT date, %s FROM body_metrics
			WHERE athlete_id = $1 AND %s IS NOT NULL
			ORDER BY date DESC LIMIT 1;`,
			column, column,
		),
		athleteID,
	)
	if err := row.Scan(&date, &value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, 0, false, nil
		}
		return time.Time{}, 0, false, fmt.Errorf("row scan: %w", err)
	}
	return date, value, true, nil
}

// LatestFTP also carries the provenance source tag of the measurement
func (r *Repo) LatestFTP(
	ctx context.Context,
	athleteID int,
) (date time.Time, value float64, source string, found bool, err error) {
	row := r.db.QueryRow(
		ctx,
		`SELECT date, ftp_w, COALESCE(ftp_source, 'unknown') FROM body_metrics
		WHERE athlete_id = $1 AND ftp_w IS NOT NULL
		ORDER BY date DESC LIMIT 1;`,
		athleteID,
	)
	if err := row.Scan(&date, &value, &source); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, 0, "", false, nil
		}
		return time.Time{}, 0, "", false, fmt.Errorf("row scan: %w", err)
	}
	return date, value, source, true, nil
}

// ListRange returns the athlete's daily observations within [from, to],
// ordered by date ascending - the readiness history for the adaptation
// engine.
func (r *Repo) ListRange(
	ctx context.Context,
	athleteID int,
	from, to time.Time,
) ([]Observation, error) {
	rows, err := r.db.Query(
		ctx,
		`SELECT
			id, athlete_id, date, weight_kg, bodyfat_pct, vo2max_mlkgmin,
			resting_hr_bpm, ftp_w, hrv_ms, sleep_min, COALESCE(ftp_source, '')
		FROM body_metrics
		WHERE athlete_id = $1 AND date >= $2 AND date <= $3
		ORDER BY date ASC;`,
		athleteID, from, to,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var observations []Observation
	for rows.Next() {
		var obs Observation
		if err := rows.Scan(
			&obs.ID, &obs.AthleteID, &obs.Date,
			&obs.WeightKg, &obs.BodyFatPct, &obs.VO2Max,
			&obs.RestingHR, &obs.FTPw, &obs.HRVms, &obs.SleepMin,
			&obs.FTPSource,
		); err != nil {
			return nil, fmt.Errorf("rows scan: %w", err)
		}
		observations = append(observations, obs)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return observations, nil
}

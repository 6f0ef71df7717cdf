package athlete

import (
	"context"
	"errors"
	"fmt"

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

func (r *Repo) Get(ctx context.Context, athleteID int) (Athlete, error) {
	row := r.db.QueryRow(
		ctx,
		`SELECT
			id, name, sex, age, height_cm, weight_kg, resting_hr, vo2max, ftp_w
		FROM athlete WHERE id = $1;`,
		athleteID,
	)

	var a Athlete
	var age *int
	var heightCm, weightKg, restingHR, vo2max, ftpW *float64
	if err := row.Scan(
		&a.ID, &a.Name, &a.Sex, &age,
		&heightCm, &weightKg, &restingHR, &vo2max, &ftpW,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Athlete{}, ErrAthleteNotFound
		}
		return Athlete{}, fmt.Errorf("row scan: %w", err)
	}

	if age != nil {
		a.Age = *age
	}
	a.HeightCm = derefOrZero(heightCm)
	a.WeightKg = derefOrZero(weightKg)
	a.RestingHR = derefOrZero(restingHR)
	a.VO2Max = derefOrZero(vo2max)
	a.FTPw = derefOrZero(ftpW)

	return a, nil
}

// Update applies a partial update, nil fields keep their stored value
func (r *Repo) Update(ctx context.Context, athleteID int, params UpdateParams) error {
	tag, err := r.db.Exec(
		ctx,
		`UPDATE athlete SET
			age        = COALESCE($1, age),
			height_cm  = COALESCE($2, height_cm),
			weight_kg  = COALESCE($3, weight_kg),
			resting_hr = COALESCE($4, resting_hr),
			vo2max     = COALESCE($5, vo2max),
			ftp_w      = COALESCE($6, ftp_w)
		WHERE id = $7;`,
		params.Age, params.HeightCm, params.WeightKg,
		params.RestingHR, params.VO2Max, params.FTPw,
		athleteID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAthleteNotFound
	}
	return nil
}

// RefreshFromMetrics overwrites the athlete snapshot with the values of
// the most recent body metrics day, keeping snapshot fields the latest
// day does not carry. Used after bulk imports.
func (r *Repo) RefreshFromMetrics(ctx context.Context, athleteID int) error {
	// no rows affected means no such athlete or no metrics yet, both
	// fine here
	_, err := r.db.Exec(
		ctx,
		`UPDATE athlete a SET
			weight_kg  = COALESCE(m.weight_kg, a.weight_kg),
			resting_hr = COALESCE(m.resting_hr_bpm, a.resting_hr),
			vo2max     = COALESCE(m.vo2max_mlkgmin, a.vo2max),
			ftp_w      = COALESCE(m.ftp_w, a.ftp_w)
		FROM (
			SELECT weight_kg, resting_hr_bpm, vo2max_mlkgmin, ftp_w
			FROM body_metrics
			WHERE athlete_id = $1
			ORDER BY date DESC
			LIMIT 1
		) m
		WHERE a.id = $1;`,
		athleteID,
	)
	return err
}

func derefOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

package goals

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

// DeactivateAllAndInsert retires the athlete's previous goals and
// stores the new one as active, in a single transaction.
func (r *Repo) DeactivateAllAndInsert(ctx context.Context, goal Goal) (int, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(
		ctx,
		`UPDATE goals SET active = FALSE WHERE athlete_id = $1 AND active;`,
		goal.AthleteID,
	); err != nil {
		return 0, fmt.Errorf("retire previous goals: %w", err)
	}

	row := tx.QueryRow(
		ctx,
		`INSERT INTO goals
			(athlete_id, target_weight_kg, target_bodyfat_pct, target_ftp_w, goal_prompt, timeframe_weeks, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE, now())
		RETURNING id;`,
		goal.AthleteID, goal.TargetWeightKg, goal.TargetBodyFatPct,
		goal.TargetFTPw, goal.GoalPrompt, goal.TimeframeWeeks,
	)

	var id int
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("row scan: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return id, nil
}

// Active returns the athlete's current goal. found == false when the
// athlete has none.
func (r *Repo) Active(ctx context.Context, athleteID int) (Goal, bool, error) {
	row := r.db.QueryRow(
		ctx,
		`SELECT
			id, athlete_id, target_weight_kg, target_bodyfat_pct, target_ftp_w,
			COALESCE(goal_prompt, ''), timeframe_weeks, active, created_at
		FROM goals
		WHERE athlete_id = $1 AND active
		ORDER BY created_at DESC LIMIT 1;`,
		athleteID,
	)

	var goal Goal
	if err := row.Scan(
		&goal.ID, &goal.AthleteID, &goal.TargetWeightKg, &goal.TargetBodyFatPct,
		&goal.TargetFTPw, &goal.GoalPrompt, &goal.TimeframeWeeks,
		&goal.Active, &goal.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Goal{}, false, nil
		}
		return Goal{}, false, fmt.Errorf("row scan: %w", err)
	}
	return goal, true, nil
}

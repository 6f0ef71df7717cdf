package training

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

func (r *Repo) AddBlock(ctx context.Context, block TrainingBlock) (int, error) {
	if block.BuildWeeks < 1 {
		return 0, errors.New("build weeks must be positive")
	}
	if block.RecoveryWeeks < 0 {
		return 0, errors.New("recovery weeks must not be negative")
	}

	row := r.db.QueryRow(
		ctx,
		`INSERT INTO training_blocks (athlete_id, start_date, build_weeks, recovery_weeks)
		VALUES ($1, $2, $3, $4)
		RETURNING id;`,
		block.AthleteID, block.StartDate, block.BuildWeeks, block.RecoveryWeeks,
	)

	var id int
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("row scan: %w", err)
	}
	return id, nil
}

// LatestBlock returns the athlete's most recently started block.
// found == false when the athlete has none.
func (r *Repo) LatestBlock(ctx context.Context, athleteID int) (TrainingBlock, bool, error) {
	row := r.db.QueryRow(
		ctx,
		`SELECT id, athlete_id, start_date, build_weeks, recovery_weeks
		FROM training_blocks
		WHERE athlete_id = $1
		ORDER BY start_date DESC, id DESC LIMIT 1;`,
		athleteID,
	)

	var block TrainingBlock
	if err := row.Scan(
		&block.ID, &block.AthleteID, &block.StartDate,
		&block.BuildWeeks, &block.RecoveryWeeks,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TrainingBlock{}, false, nil
		}
		return TrainingBlock{}, false, fmt.Errorf("row scan: %w", err)
	}
	return block, true, nil
}

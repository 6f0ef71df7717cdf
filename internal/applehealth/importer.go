package applehealth

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/2beens/velotrain/internal/activities"
	"github.com/2beens/velotrain/internal/bodymetrics"
	"github.com/2beens/velotrain/internal/telemetry/metrics"
	"github.com/2beens/velotrain/internal/telemetry/tracing"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

const ftpSourceAppleHealth = "apple_health"

type metricsStore interface {
	Upsert(ctx context.Context, obs bodymetrics.Observation) error
}

type activitiesStore interface {
	Add(ctx context.Context, activity activities.Activity) (int, error)
	ExistsDuplicate(ctx context.Context, activity activities.Activity) (bool, error)
}

type snapshotRefresher interface {
	RefreshFromMetrics(ctx context.Context, athleteID int) error
}

type Importer struct {
	metricsRepo  metricsStore
	activityRepo activitiesStore
	athleteRepo  snapshotRefresher
	metrics      *metrics.Manager
	now          func() time.Time
}

func NewImporter(
	metricsRepo metricsStore,
	activityRepo activitiesStore,
	athleteRepo snapshotRefresher,
	metricsManager *metrics.Manager,
) *Importer {
	return &Importer{
		metricsRepo:  metricsRepo,
		activityRepo: activityRepo,
		athleteRepo:  athleteRepo,
		metrics:      metricsManager,
		now:          time.Now,
	}
}

type ImportReport struct {
	MetricsDays      int `json:"metricsDaysImported"`
	WorkoutsImported int `json:"workoutsImported"`
	Skipped          int `json:"skipped"`
}

// Import parses the export archive and stores everything newer than
// sinceDays days: body observations merged per day, cycling workouts
// as activities, then the athlete snapshot refreshed off the latest
// metrics day.
func (imp *Importer) Import(
	ctx context.Context,
	athleteID int,
	archive io.ReaderAt,
	size int64,
	sinceDays int,
) (ImportReport, error) {
	var err error
	ctx, span := tracing.GlobalTracer.Start(ctx, "applehealth.importer.import")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(
		attribute.Int("athlete.id", athleteID),
		attribute.Int("since.days", sinceDays),
	)

	startedAt := imp.now()
	defer func() {
		imp.metrics.HistImportDuration.Observe(time.Since(startedAt).Seconds())
	}()

	cutoff := startedAt.AddDate(0, 0, -sinceDays)
	parsed, err := Parse(archive, size, cutoff)
	if err != nil {
		return ImportReport{}, err
	}

	report := ImportReport{Skipped: parsed.Skipped}
	imp.metrics.CounterImportSkippedRows.Add(float64(parsed.Skipped))

	for dayKey, dayMetrics := range parsed.Days {
		date, parseErr := time.Parse(dateLayout, dayKey)
		if parseErr != nil {
			report.Skipped++
			imp.metrics.CounterImportSkippedRows.Inc()
			continue
		}
		obs := bodymetrics.Observation{
			AthleteID:  athleteID,
			Date:       date,
			WeightKg:   dayMetrics.WeightKg,
			BodyFatPct: dayMetrics.BodyFatPct,
			VO2Max:     dayMetrics.VO2Max,
			RestingHR:  dayMetrics.RestingHR,
			FTPw:       dayMetrics.FTPw,
			HRVms:      dayMetrics.HRVms,
		}
		if dayMetrics.FTPw != nil {
			obs.FTPSource = ftpSourceAppleHealth
		}
		if err = imp.metricsRepo.Upsert(ctx, obs); err != nil {
			return report, fmt.Errorf("upsert metrics for %s: %w", dayKey, err)
		}
		report.MetricsDays++
	}

	for _, workout := range parsed.Workouts {
		activity := activities.Activity{
			AthleteID:   athleteID,
			Date:        workout.Date,
			Sport:       activities.SportBike,
			Title:       "Apple Health cycling workout",
			DurationMin: float64(workout.DurationMin),
			TSS:         float64(workout.TSS),
			Source:      ftpSourceAppleHealth,
		}
		exists, dupErr := imp.activityRepo.ExistsDuplicate(ctx, activity)
		if dupErr != nil {
			return report, fmt.Errorf("check duplicate workout: %w", dupErr)
		}
		if exists {
			report.Skipped++
			imp.metrics.CounterImportSkippedRows.Inc()
			continue
		}
		if _, err = imp.activityRepo.Add(ctx, activity); err != nil {
			return report, fmt.Errorf("store workout: %w", err)
		}
		report.WorkoutsImported++
		imp.metrics.CounterActivitiesImported.Inc()
	}

	if err = imp.athleteRepo.RefreshFromMetrics(ctx, athleteID); err != nil {
		// snapshot refresh is best effort, metrics are already stored
		log.Errorf("refresh athlete %d snapshot after import: %s", athleteID, err)
		err = nil
	}

	log.Debugf(
		"apple health import done for athlete %d: days %d, workouts %d, skipped %d",
		athleteID, report.MetricsDays, report.WorkoutsImported, report.Skipped,
	)
	return report, nil
}

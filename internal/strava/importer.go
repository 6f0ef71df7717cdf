package strava

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/2beens/velotrain/internal/activities"
	"github.com/2beens/velotrain/internal/telemetry/metrics"
	"github.com/2beens/velotrain/internal/telemetry/tracing"
	"github.com/2beens/velotrain/pkg"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

const dateLayout = "2006-01-02"

// stress-per-minute multipliers for imported activities without power
// data
const (
	estTSSPerMinBike  = 0.75
	estTSSPerMinRun   = 0.90
	estTSSPerMinOther = 0.60
)

var sportByType = map[string]activities.Sport{
	"Ride":        activities.SportBike,
	"VirtualRide": activities.SportBike,
	"EBikeRide":   activities.SportBike,
	"GravelRide":  activities.SportBike,
	"Run":         activities.SportRun,
	"Swim":        activities.SportSwim,
	"Walk":        activities.SportWalk,
	"Hike":        activities.SportHike,
}

// mapSport resolves a raw Strava activity type to our sport vocabulary:
// exact match first, then a prefix match for variant types such as
// "RideWithPowerMeter", otherwise other.
func mapSport(rawType string) activities.Sport {
	t := strings.TrimSpace(rawType)
	if sport, ok := sportByType[t]; ok {
		return sport
	}
	for typeName, sport := range sportByType {
		if strings.HasPrefix(t, typeName) {
			return sport
		}
	}
	return activities.SportOther
}

func estimateImportTSS(sport activities.Sport, durationMin int) float64 {
	var perMin float64
	switch sport {
	case activities.SportBike:
		perMin = estTSSPerMinBike
	case activities.SportRun:
		perMin = estTSSPerMinRun
	default:
		perMin = estTSSPerMinOther
	}
	return math.Round(float64(durationMin) * perMin)
}

type activitiesStore interface {
	Add(ctx context.Context, activity activities.Activity) (int, error)
	ExistsDuplicate(ctx context.Context, activity activities.Activity) (bool, error)
}

type activityLister interface {
	ListActivities(ctx context.Context, after time.Time, page int) ([]apiActivity, error)
}

type Importer struct {
	client       activityLister
	activityRepo activitiesStore
	metrics      *metrics.Manager
	now          func() time.Time
}

func NewImporter(client activityLister, activityRepo activitiesStore, metricsManager *metrics.Manager) *Importer {
	return &Importer{
		client:       client,
		activityRepo: activityRepo,
		metrics:      metricsManager,
		now:          time.Now,
	}
}

// ImportReport sums up one import run. Skipped covers both malformed
// rows and duplicates of already stored activities.
type ImportReport struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

// Import pulls the athlete's activities from the last afterDays days
// and stores the ones not seen before. A single bad row is skipped and
// counted, never fatal; a listing failure aborts with the rows imported
// so far reflected in the report.
func (imp *Importer) Import(ctx context.Context, athleteID, afterDays int) (ImportReport, error) {
	var err error
	ctx, span := tracing.GlobalTracer.Start(ctx, "strava.importer.import")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(
		attribute.Int("athlete.id", athleteID),
		attribute.Int("after.days", afterDays),
	)

	startedAt := imp.now()
	defer func() {
		imp.metrics.HistImportDuration.Observe(time.Since(startedAt).Seconds())
	}()

	after := startedAt.AddDate(0, 0, -afterDays)
	var report ImportReport
	for page := 1; ; page++ {
		var items []apiActivity
		items, err = imp.client.ListActivities(ctx, after, page)
		if err != nil {
			return report, err
		}
		if len(items) == 0 {
			break
		}
		for _, item := range items {
			if importErr := imp.importOne(ctx, athleteID, item, &report); importErr != nil {
				log.Warnf("skip strava activity [%s]: %s", item.Name, importErr)
				report.Skipped++
				imp.metrics.CounterImportSkippedRows.Inc()
			}
		}
	}

	return report, nil
}

func (imp *Importer) importOne(
	ctx context.Context,
	athleteID int,
	item apiActivity,
	report *ImportReport,
) error {
	start := item.StartDateLocal
	if start == "" {
		start = item.StartDate
	}
	if start == "" {
		return fmt.Errorf("no start date")
	}
	date, err := time.Parse(dateLayout, strings.SplitN(start, "T", 2)[0])
	if err != nil {
		return fmt.Errorf("parse start date %q: %w", start, err)
	}

	durationMin := int(math.Round(float64(item.MovingTimeSec) / 60.0))
	if durationMin <= 0 {
		return fmt.Errorf("non-positive duration")
	}

	sport := mapSport(item.Type)
	activity := activities.Activity{
		AthleteID:   athleteID,
		Date:        date,
		Sport:       sport,
		Title:       item.Name,
		DurationMin: float64(durationMin),
		TSS:         estimateImportTSS(sport, durationMin),
		Source:      "strava",
	}

	exists, err := imp.activityRepo.ExistsDuplicate(ctx, activity)
	if err != nil {
		return fmt.Errorf("check duplicate: %w", err)
	}
	if exists {
		report.Skipped++
		imp.metrics.CounterImportSkippedRows.Inc()
		return nil
	}

	if _, err := imp.activityRepo.Add(ctx, activity); err != nil {
		// concurrent re-import can beat the duplicate probe
		if pkg.IsUniqueViolationError(err) {
			report.Skipped++
			imp.metrics.CounterImportSkippedRows.Inc()
			return nil
		}
		return fmt.Errorf("store activity: %w", err)
	}
	report.Imported++
	imp.metrics.CounterActivitiesImported.Inc()
	return nil
}

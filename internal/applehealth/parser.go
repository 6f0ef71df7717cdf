package applehealth

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	dateLayout = "2006-01-02"
	lbToKg     = 0.45359237
	// rough stress estimate for cycling workouts without power data
	estTSSPerMinBike = 0.75
)

var (
	ErrInvalidArchive    = errors.New("invalid zip archive")
	ErrExportXMLNotFound = errors.New("export.xml not found in archive")
)

// DayMetrics collects the body observations of one export day
type DayMetrics struct {
	WeightKg   *float64
	BodyFatPct *float64
	VO2Max     *float64
	RestingHR  *float64
	FTPw       *float64
	HRVms      *float64
}

// Workout is a cycling workout lifted from the export
type Workout struct {
	Date        time.Time
	DurationMin int
	TSS         int
}

type ParseResult struct {
	// keyed by day in dateLayout form
	Days     map[string]*DayMetrics
	Workouts []Workout
	Skipped  int
}

// health export record and workout attributes, decoded per element
type exportElement struct {
	Type         string `xml:"type,attr"`
	Unit         string `xml:"unit,attr"`
	Value        string `xml:"value,attr"`
	StartDate    string `xml:"startDate,attr"`
	EndDate      string `xml:"endDate,attr"`
	CreationDate string `xml:"creationDate,attr"`
	WorkoutType  string `xml:"workoutActivityType,attr"`
	Duration     string `xml:"duration,attr"`
	DurationUnit string `xml:"durationUnit,attr"`
}

// Parse streams export.xml out of an Apple Health export archive and
// collects per-day body metrics and cycling workouts, ignoring
// anything dated before the cutoff. Malformed records are skipped and
// counted, never fatal.
func Parse(archive io.ReaderAt, size int64, cutoff time.Time) (*ParseResult, error) {
	zipReader, err := zip.NewReader(archive, size)
	if err != nil {
		return nil, ErrInvalidArchive
	}

	var exportFile *zip.File
	for _, f := range zipReader.File {
		if strings.HasSuffix(f.Name, "export.xml") {
			exportFile = f
			break
		}
	}
	if exportFile == nil {
		return nil, ErrExportXMLNotFound
	}

	exportXML, err := exportFile.Open()
	if err != nil {
		return nil, fmt.Errorf("open export.xml: %w", err)
	}
	defer exportXML.Close()

	result := &ParseResult{Days: map[string]*DayMetrics{}}
	decoder := xml.NewDecoder(exportXML)
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode export.xml: %w", err)
		}

		startElem, ok := token.(xml.StartElement)
		if !ok {
			continue
		}

		switch startElem.Name.Local {
		case "Record":
			var elem exportElement
			if err := decoder.DecodeElement(&elem, &startElem); err != nil {
				result.Skipped++
				continue
			}
			result.addRecord(elem, cutoff)
		case "Workout":
			var elem exportElement
			if err := decoder.DecodeElement(&elem, &startElem); err != nil {
				result.Skipped++
				continue
			}
			result.addWorkout(elem, cutoff)
		}
	}

	log.Debugf(
		"apple health export parsed: days %d, workouts %d, skipped %d",
		len(result.Days), len(result.Workouts), result.Skipped,
	)
	return result, nil
}

func (result *ParseResult) addRecord(elem exportElement, cutoff time.Time) {
	value, err := strconv.ParseFloat(elem.Value, 64)
	if err != nil {
		result.Skipped++
		return
	}
	day, ok := exportDay(elem)
	if !ok {
		result.Skipped++
		return
	}
	if day.Before(cutoff) {
		return
	}

	dayKey := day.Format(dateLayout)
	bucket, ok := result.Days[dayKey]
	if !ok {
		bucket = &DayMetrics{}
		result.Days[dayKey] = bucket
	}

	unit := strings.ToLower(elem.Unit)
	switch elem.Type {
	case "HKQuantityTypeIdentifierBodyMass":
		if unit == "lb" || unit == "lbs" {
			value *= lbToKg
		}
		bucket.WeightKg = &value
	case "HKQuantityTypeIdentifierBodyFatPercentage":
		// stored as a 0..1 fraction in some exports
		if value <= 1.0 {
			value *= 100.0
		}
		bucket.BodyFatPct = &value
	case "HKQuantityTypeIdentifierVO2Max":
		bucket.VO2Max = &value
	case "HKQuantityTypeIdentifierRestingHeartRate":
		bucket.RestingHR = &value
	case "HKQuantityTypeIdentifierCyclingFunctionalThresholdPower":
		bucket.FTPw = &value
	case "HKQuantityTypeIdentifierHeartRateVariabilitySDNN":
		bucket.HRVms = &value
	}
}

func (result *ParseResult) addWorkout(elem exportElement, cutoff time.Time) {
	if !strings.Contains(strings.ToLower(elem.WorkoutType), "cycling") {
		return
	}
	duration, err := strconv.ParseFloat(elem.Duration, 64)
	if err != nil {
		result.Skipped++
		return
	}
	day, ok := exportDay(elem)
	if !ok {
		result.Skipped++
		return
	}
	if day.Before(cutoff) {
		return
	}

	durationMin := duration
	if !strings.Contains(strings.ToLower(elem.DurationUnit), "min") {
		durationMin = duration * 60.0
	}
	if durationMin <= 0 {
		result.Skipped++
		return
	}

	result.Workouts = append(result.Workouts, Workout{
		Date:        day,
		DurationMin: int(math.Round(durationMin)),
		TSS:         int(math.Round(durationMin * estTSSPerMinBike)),
	})
}

// exportDay resolves the record day: end date preferred, falling back
// to creation then start. Apple dates look like
// "2025-10-04 07:15:28 +0100".
func exportDay(elem exportElement) (time.Time, bool) {
	raw := elem.EndDate
	if raw == "" {
		raw = elem.CreationDate
	}
	if raw == "" {
		raw = elem.StartDate
	}
	if raw == "" {
		return time.Time{}, false
	}
	day, err := time.Parse(dateLayout, strings.SplitN(raw, " ", 2)[0])
	if err != nil {
		return time.Time{}, false
	}
	return day, true
}

// Package formatter turns raw activity-log events into per-version timelines.
package formatter

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"catalogue/internal/activitylog/models"
	dErrors "catalogue/pkg/domain-errors"
)

const (
	// UpdateApplicationType labels every amendment iteration.
	UpdateApplicationType = "Update"
	// DateLayout renders submission dates as "D Month YYYY".
	DateLayout = "2 January 2006"
)

// Clock returns the current time.
type Clock func() time.Time

// Formatter groups events by version. It holds no per-call state and is
// safe for concurrent use.
type Formatter struct {
	clock Clock
}

// Option configures a Formatter.
type Option func(*Formatter)

// WithClock sets the clock used for daysSinceSubmission.
func WithClock(clock Clock) Option {
	return func(f *Formatter) {
		if clock != nil {
			f.clock = clock
		}
	}
}

// New constructs a Formatter using time.Now unless overridden.
func New(opts ...Option) *Formatter {
	f := &Formatter{clock: time.Now}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FormatTimeline returns one entry per major or minor version that has at
// least one event, ordered newest version first. Events inside an entry are
// ordered newest first; ties keep store order.
func (f *Formatter) FormatTimeline(events []*models.EventRecord, versions []models.VersionRecord) ([]models.VersionTimeline, error) {
	if err := validateVersions(versions); err != nil {
		return nil, err
	}

	byVersion := make(map[string][]*models.EventRecord)
	for _, e := range events {
		if e == nil {
			continue
		}
		byVersion[e.VersionID] = append(byVersion[e.VersionID], e)
	}

	now := f.clock()
	timelines := make([]models.VersionTimeline, 0, len(versions))
	for _, v := range versions {
		if major, ok := buildEntry(byVersion[v.ID], now, entryInput{
			id:            v.ID,
			label:         fmt.Sprintf("Version %d", v.MajorVersionNumber),
			number:        float64(v.MajorVersionNumber),
			dateSubmitted: v.DateSubmitted,
			appType:       v.ApplicationType,
			appStatus:     v.ApplicationStatus,
		}); ok {
			timelines = append(timelines, major)
		}

		width := len(strconv.Itoa(len(v.AmendmentIterations)))
		for i, minor := range v.AmendmentIterations {
			entry, ok := buildEntry(byVersion[minor.ID], now, entryInput{
				id:            minor.ID,
				label:         fmt.Sprintf("Version %d.%d", v.MajorVersionNumber, i+1),
				number:        minorNumber(v.MajorVersionNumber, i+1, width),
				dateSubmitted: minor.DateSubmitted,
				appType:       UpdateApplicationType,
				appStatus:     v.ApplicationStatus,
			})
			if ok {
				timelines = append(timelines, entry)
			}
		}
	}

	sort.SliceStable(timelines, func(i, j int) bool {
		return timelines[i].VersionNumber > timelines[j].VersionNumber
	})
	return timelines, nil
}

type entryInput struct {
	id            string
	label         string
	number        float64
	dateSubmitted *time.Time
	appType       string
	appStatus     string
}

func buildEntry(events []*models.EventRecord, now time.Time, in entryInput) (models.VersionTimeline, bool) {
	if len(events) == 0 {
		return models.VersionTimeline{}, false
	}

	sorted := append([]*models.EventRecord(nil), events...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.After(sorted[j].Timestamp)
	})

	meta := models.TimelineMeta{
		ApplicationType:   in.appType,
		ApplicationStatus: in.appStatus,
	}
	if in.dateSubmitted != nil {
		date := in.dateSubmitted.Format(DateLayout)
		days := DaysSince(now, *in.dateSubmitted)
		meta.DateSubmitted = &date
		meta.DaysSinceSubmission = &days
	}

	return models.VersionTimeline{
		VersionID:     in.id,
		Version:       in.label,
		VersionNumber: in.number,
		Meta:          meta,
		Events:        sorted,
	}, true
}

// minorNumber renders major.minor with the minor part zero-padded to width
// digits, so that 3.10 sorts above 3.09 rather than colliding with 3.1.
func minorNumber(major, minor, width int) float64 {
	n, _ := strconv.ParseFloat(fmt.Sprintf("%d.%0*d", major, width, minor), 64)
	return n
}

// DaysSince formats the whole days elapsed between submitted and now. A
// submission dated after now counts as zero days.
func DaysSince(now, submitted time.Time) string {
	n := max(int(now.Sub(submitted).Hours()/24), 0)
	if n == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", n)
}

func validateVersions(versions []models.VersionRecord) error {
	for i, v := range versions {
		if v.ID == "" {
			return dErrors.Newf(dErrors.CodeValidation, "versions[%d]: id is required", i)
		}
		for j, m := range v.AmendmentIterations {
			if m.ID == "" {
				return dErrors.Newf(dErrors.CodeValidation, "versions[%d].amendmentIterations[%d]: id is required", i, j)
			}
		}
	}
	return nil
}

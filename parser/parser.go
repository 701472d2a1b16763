// Package parser turns extracted forecast rows into flat export records:
// it splits the combined date cell into its parts and computes the derived
// columns the page never carries as standalone values.
package parser

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/windguru-tools/wgscrape/models"
)

// ErrNoDate marks a row whose date cell exists but yields no usable date.
// Such rows are dropped from exports.
var ErrNoDate = errors.New("no parsable date")

// DerivedColumns lists the computed columns in export order. Writers
// append them after the schema-declared columns.
var DerivedColumns = []string{
	"wind_speed_avg",
	"wind_dir_arrow",
	"swell_dir_arrow",
	"cloud_high",
	"cloud_mid",
	"cloud_low",
}

// dateCellRe matches the combined date cell, e.g. "Sa\n5.\n08h". Inline
// markup may flatten the parts together ("Sa5.08h"), so the separators
// are optional.
var dateCellRe = regexp.MustCompile(`([A-Za-z]{1,3})\s*(\d{1,2})\.\s*(\d{1,2})h`)

// ParseDateCell splits the combined date cell into the day abbreviation,
// day of month and forecast hour.
func ParseDateCell(text string) (day string, dayOfMonth, hour int, err error) {
	m := dateCellRe.FindStringSubmatch(text)
	if m == nil {
		return "", 0, 0, fmt.Errorf("date cell %q: no date found", strings.TrimSpace(text))
	}
	// The pattern admits only one- or two-digit captures.
	dayOfMonth, _ = strconv.Atoi(m[2])
	hour, _ = strconv.Atoi(m[3])
	if dayOfMonth < 1 || dayOfMonth > 31 || hour > 23 {
		return "", 0, 0, fmt.Errorf("date cell %q: impossible date", strings.TrimSpace(text))
	}
	return m[1], dayOfMonth, hour, nil
}

// CloudLayers splits a cloud-cover profile into its three altitude bands.
// The page lists layers top-down, so the profile order is high, mid, low.
// A blank layer means the band is clear; non-numeric text is a parse fault.
func CloudLayers(profile []string) (high, mid, low models.Value) {
	layer := func(i int) models.Value {
		if i >= len(profile) {
			return models.Missing("no_data")
		}
		s := strings.TrimSpace(profile[i])
		if s == "" {
			return models.Missing("no_data")
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return models.Fault(models.FaultParse, fmt.Sprintf("cloud layer %q is not numeric", s))
		}
		return models.Scalar(f)
	}
	return layer(0), layer(1), layer(2)
}

// ArrowDirection converts a direction given as "coming from" into the
// heading a display arrow points at, normalized to [0, 360).
func ArrowDirection(deg float64) float64 {
	d := math.Mod(deg+180, 360)
	if d < 0 {
		d += 360
	}
	return d
}

// WindAverage is the mean of the sustained wind speed and its gusts.
func WindAverage(speed, gust float64) float64 {
	return (speed + gust) / 2
}

// BuildRecord flattens one forecast row into an export record: the
// extracted values plus the derived columns computed from them. A row
// whose date cell cannot be parsed yields ErrNoDate; a row whose schema
// declares no date column at all is kept undated.
func BuildRecord(tableKey string, row models.ForecastRow, scrapedAt time.Time) (*models.Record, error) {
	rec := &models.Record{
		Table:     tableKey,
		Row:       row.Index,
		Values:    make(map[string]models.Value, len(row.Values)+len(DerivedColumns)),
		ScrapedAt: scrapedAt,
	}
	for key, v := range row.Values {
		rec.Values[key] = v
	}

	if date, ok := row.Values["date_info"]; ok {
		text, isText := date.Text()
		if !isText {
			return nil, fmt.Errorf("row %d: %w", row.Index, ErrNoDate)
		}
		day, dayOfMonth, hour, err := ParseDateCell(text)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w: %v", row.Index, ErrNoDate, err)
		}
		rec.Day, rec.DayOfMonth, rec.Hour = day, dayOfMonth, hour
	}

	deriveAverage(rec, "wind_speed_avg", "wind_speed", "gust_speed")
	deriveArrow(rec, "wind_dir_arrow", "wind_dir")
	deriveArrow(rec, "swell_dir_arrow", "swell_dir")
	deriveClouds(rec, "cloud_cover")
	return rec, nil
}

// Derivations apply only when the source columns exist in the row, so
// schemas without the conventional keys get no phantom columns.

func deriveAverage(rec *models.Record, key, speedKey, gustKey string) {
	speedVal, ok := rec.Values[speedKey]
	if !ok {
		return
	}
	gustVal, ok := rec.Values[gustKey]
	if !ok {
		return
	}
	speed, speedOK := speedVal.Float()
	gust, gustOK := gustVal.Float()
	if !speedOK || !gustOK {
		rec.Values[key] = models.Missing("no_data")
		return
	}
	rec.Values[key] = models.Scalar(WindAverage(speed, gust))
}

func deriveArrow(rec *models.Record, key, sourceKey string) {
	v, ok := rec.Values[sourceKey]
	if !ok {
		return
	}
	deg, isFloat := v.Float()
	if !isFloat {
		rec.Values[key] = models.Missing("no_data")
		return
	}
	rec.Values[key] = models.Scalar(ArrowDirection(deg))
}

func deriveClouds(rec *models.Record, sourceKey string) {
	v, ok := rec.Values[sourceKey]
	if !ok {
		return
	}
	profile, isProfile := v.Strings()
	if !isProfile {
		rec.Values["cloud_high"] = models.Missing("no_data")
		rec.Values["cloud_mid"] = models.Missing("no_data")
		rec.Values["cloud_low"] = models.Missing("no_data")
		return
	}
	rec.Values["cloud_high"], rec.Values["cloud_mid"], rec.Values["cloud_low"] = CloudLayers(profile)
}

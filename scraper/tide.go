package scraper

import (
	"strconv"

	"github.com/windguru-tools/wgscrape/models"
	"github.com/windguru-tools/wgscrape/schema"
)

// extractTides scans the cell text for every non-overlapping time match
// and classifies each into a tide event. Kinds alternate starting from
// the configured first event; when an amplitude sits next to a time and
// amplitude override is enabled, the threshold decides the kind instead,
// and alternation continues from that decision. A cell with no matches
// yields an empty sequence: days without tide data are expected.
func (a *Assembler) extractTides(text string, spec schema.Extraction) models.Value {
	re, err := a.res.pattern(spec.Pattern)
	if err != nil {
		return models.Fault(models.FaultConfig, err.Error())
	}

	matches := re.FindAllStringIndex(text, -1)
	events := make([]models.TideEvent, 0, len(matches))
	if len(matches) == 0 {
		return models.Scalar(events)
	}

	next := models.TideHigh
	if spec.FirstEvent == string(models.TideLow) {
		next = models.TideLow
	}
	override := spec.AmplitudeOverrides == nil || *spec.AmplitudeOverrides

	for i, m := range matches {
		kind := next
		if override {
			if amp, ok := amplitudeAfter(text, matches, i); ok {
				if amp >= spec.Threshold {
					kind = models.TideHigh
				} else {
					kind = models.TideLow
				}
			}
		}
		events = append(events, models.TideEvent{Time: text[m[0]:m[1]], Kind: kind})
		next = kind.Opposite()
	}
	return models.Scalar(events)
}

// amplitudeAfter reads the numeric amplitude between one time match and
// the next, e.g. the 4.2 in "06:10 4.2m 18:40 0.9m".
func amplitudeAfter(text string, matches [][]int, i int) (float64, bool) {
	gapEnd := len(text)
	if i+1 < len(matches) {
		gapEnd = matches[i+1][0]
	}
	raw := numberRe.FindString(text[matches[i][1]:gapEnd])
	if raw == "" {
		return 0, false
	}
	amp, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return amp, true
}

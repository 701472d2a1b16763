package scraper

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/windguru-tools/wgscrape/models"
	"github.com/windguru-tools/wgscrape/schema"
)

// numberRe matches the first signed decimal in free-form text, e.g. the
// 337 in a direction tooltip like "NNW (337°)".
var numberRe = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

// extract applies one strategy to one node. Every failure degrades into
// a missing or fault value; nothing here aborts the scrape.
func (a *Assembler) extract(node *html.Node, spec schema.Extraction) models.Value {
	switch spec.Strategy {
	case schema.StrategyText:
		return extractText(node)
	case schema.StrategyNumeric:
		return extractNumeric(node)
	case schema.StrategyRegex:
		return a.extractRegex(node, spec)
	case schema.StrategyAngleAttr:
		return a.extractAngle(node, spec)
	case schema.StrategyMultiText:
		return a.extractMultiText(node, spec)
	case schema.StrategyTideTimes:
		return a.extractTides(nodeText(node), spec)
	default:
		return models.Fault(models.FaultConfig, fmt.Sprintf("unknown strategy %q", spec.Strategy))
	}
}

func extractText(node *html.Node) models.Value {
	text := strings.TrimSpace(nodeText(node))
	if text == "" {
		return models.Missing("no_text")
	}
	return models.Scalar(text)
}

// extractNumeric parses the cell text as a decimal. Forecast tables use
// a bare dash (or a blank cell) as the no-data placeholder, which is
// absence, not a parse failure.
func extractNumeric(node *html.Node) models.Value {
	text := strings.TrimSpace(nodeText(node))
	if text == "" || text == "-" {
		return models.Missing("no_data")
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return models.Fault(models.FaultParse, fmt.Sprintf("not a number: %q", text))
	}
	return models.Scalar(f)
}

func (a *Assembler) extractRegex(node *html.Node, spec schema.Extraction) models.Value {
	re, err := a.res.pattern(spec.Pattern)
	if err != nil {
		return models.Fault(models.FaultConfig, err.Error())
	}

	text := nodeText(node)
	idx := re.FindStringSubmatchIndex(text)
	if idx == nil {
		return models.Fault(models.FaultNoMatch, fmt.Sprintf("pattern %q matched nothing", spec.Pattern))
	}

	out := make(map[string]models.Value, len(spec.Groups))
	for gi, name := range spec.Groups {
		start, end := idx[2*(gi+1)], idx[2*(gi+1)+1]
		if start < 0 {
			out[name] = models.Missing("no_capture")
			continue
		}
		out[name] = typedScalar(text[start:end])
	}
	return models.Mapping(out)
}

// typedScalar keeps captures numeric when they parse as numbers, so
// coordinates and altitudes do not come out as strings.
func typedScalar(raw string) models.Value {
	trimmed := strings.TrimSpace(raw)
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return models.Scalar(f)
	}
	return models.Scalar(raw)
}

func (a *Assembler) extractAngle(node *html.Node, spec schema.Extraction) models.Value {
	target, err := a.res.ResolveOne(node, *spec.SubSelector)
	if err != nil {
		return models.Fault(models.FaultParse, err.Error())
	}
	raw, ok := attrValue(target, spec.Attribute)
	if !ok {
		return models.Fault(models.FaultParse, fmt.Sprintf("attribute %q absent", spec.Attribute))
	}
	match := numberRe.FindString(raw)
	if match == "" {
		return models.Fault(models.FaultParse, fmt.Sprintf("no angle in %q", raw))
	}
	deg, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return models.Fault(models.FaultParse, fmt.Sprintf("no angle in %q", raw))
	}
	return models.Scalar(normalizeAngle(deg))
}

// normalizeAngle maps any angle onto [0, 360).
func normalizeAngle(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}

// extractMultiText collects the trimmed text of every sub-element match
// in document order. Blank entries are preserved so positional profiles
// (cloud layers: high, mid, low) keep their slots; an empty sequence is
// a valid value, distinct from missing.
func (a *Assembler) extractMultiText(node *html.Node, spec schema.Extraction) models.Value {
	nodes, err := a.res.Resolve(node, *spec.SubSelector)
	if err != nil {
		return models.Fault(models.FaultConfig, err.Error())
	}
	parts := make([]string, len(nodes))
	for i, n := range nodes {
		parts[i] = strings.TrimSpace(nodeText(n))
	}
	return models.Scalar(parts)
}

package scraper

import (
	"errors"

	"github.com/windguru-tools/wgscrape/models"
	"github.com/windguru-tools/wgscrape/schema"
)

// ErrLocatorNotFound reports a location that matched no node in scope.
// Callers decide whether that is fatal (a table root) or expected data
// absence (a forecast cell beyond the model horizon).
var ErrLocatorNotFound = errors.New("no node matched location")

// fieldFault converts a resolver error into the degraded value recorded
// for a page field.
func fieldFault(err error) models.Value {
	var cfgErr *schema.ConfigError
	switch {
	case errors.As(err, &cfgErr):
		return models.Fault(models.FaultConfig, err.Error())
	default:
		return models.Fault(models.FaultLocator, err.Error())
	}
}

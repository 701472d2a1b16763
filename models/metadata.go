package models

// ColumnInfo documents one exported column for machine consumers.
type ColumnInfo struct {
	Description string `json:"description"`
	Unit        string `json:"unit,omitempty"`
}

// ColumnDescriptions maps the conventional forecast column keys, and the
// columns derived from them, to human-readable metadata. Keys absent from
// a given schema are simply not looked up.
var ColumnDescriptions = map[string]ColumnInfo{
	"day":          {Description: "Abbreviated day of the week"},
	"day_of_month": {Description: "Day of the month"},
	"hour":         {Description: "Forecast hour of the day, 24h clock"},

	"date_info":    {Description: "Raw date cell: day abbreviation, day of month, hour"},
	"wind_speed":   {Description: "Average wind speed", Unit: "knots (kn)"},
	"gust_speed":   {Description: "Maximum instantaneous wind speed (gust)", Unit: "knots (kn)"},
	"wind_dir":     {Description: "Wind direction (meteorological convention)", Unit: "degrees (°)"},
	"swell_height": {Description: "Significant wave height of the primary swell", Unit: "meters (m)"},
	"swell_period": {Description: "Period of the primary swell", Unit: "seconds (s)"},
	"swell_dir":    {Description: "Direction from which the primary swell is coming (oceanographic convention)", Unit: "degrees (°)"},
	"temperature":  {Description: "Air temperature", Unit: "degrees Celsius (°C)"},
	"cloud_cover":  {Description: "Cloud cover profile: high, mid, low layers", Unit: "percentage (%)"},
	"precip":       {Description: "Precipitation amount", Unit: "millimeters (mm)"},
	"tide":         {Description: "Tide events for the forecast day"},

	"wind_speed_avg": {Description: "Mean of average wind speed and gusts", Unit: "knots (kn)"},
	"wind_dir_arrow": {Description: "Wind direction rotated 180° for arrow display", Unit: "degrees (°)"},
	"swell_dir_arrow": {
		Description: "Swell direction rotated 180° for arrow display",
		Unit:        "degrees (°)",
	},
	"cloud_high": {Description: "Percentage of high-level cloud cover", Unit: "percentage (%)"},
	"cloud_mid":  {Description: "Percentage of mid-level cloud cover", Unit: "percentage (%)"},
	"cloud_low":  {Description: "Percentage of low-level cloud cover", Unit: "percentage (%)"},
}

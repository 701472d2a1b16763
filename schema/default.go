package schema

// Default returns the built-in schema for windguru station pages: the
// sunrise/sunset and coordinate page fields plus the primary forecast
// table with the GFS column row ids.
func Default() *Config {
	return &Config{
		Fields: []Field{
			{
				Name:       "spot_name",
				Location:   Location{Kind: LocatorCSS, Value: ".spot-name"},
				Extraction: Extraction{Strategy: StrategyText},
			},
			{
				Name:     "sun",
				Location: Location{Kind: LocatorCSS, Value: ".sunrise-sunset"},
				Extraction: Extraction{
					Strategy: StrategyRegex,
					Pattern:  `(\d{1,2}:\d{2}) - (\d{1,2}:\d{2})`,
					Groups:   []string{"sunrise", "sunset"},
				},
			},
			{
				Name:     "position",
				Location: Location{Kind: LocatorCSS, Value: ".spot-info"},
				Extraction: Extraction{
					Strategy: StrategyRegex,
					Pattern:  `lat:\s*(-?\d+(?:\.\d+)?),\s*lon:\s*(-?\d+(?:\.\d+)?),\s*alt:\s*(-?\d+(?:\.\d+)?)\s*m`,
					Groups:   []string{"latitude", "longitude", "altitude"},
				},
			},
		},
		Tables: []Table{
			{
				Key:      "forecast",
				Location: Location{Kind: LocatorID, Value: "tabid_0_0"},
				Columns: []Column{
					{
						Key:         "date_info",
						RowIDSuffix: "_dates",
						Extraction:  Extraction{Strategy: StrategyText},
					},
					{
						Key:                "wind_speed",
						RowIDSuffix:        "_WINDSPD",
						RequiresActiveCell: true,
						Extraction:         Extraction{Strategy: StrategyNumeric},
					},
					{
						Key:                "gust_speed",
						RowIDSuffix:        "_GUST",
						RequiresActiveCell: true,
						Extraction:         Extraction{Strategy: StrategyNumeric},
					},
					{
						Key:                "wind_dir",
						RowIDSuffix:        "_SMER",
						RequiresActiveCell: true,
						Extraction: Extraction{
							Strategy:    StrategyAngleAttr,
							SubSelector: &Location{Kind: LocatorCSS, Value: "span"},
							Attribute:   "title",
						},
					},
					{
						Key:                "swell_height",
						RowIDSuffix:        "_HTSGW",
						RequiresActiveCell: true,
						Extraction:         Extraction{Strategy: StrategyNumeric},
					},
					{
						Key:                "swell_period",
						RowIDSuffix:        "_PERPW",
						RequiresActiveCell: true,
						Extraction:         Extraction{Strategy: StrategyNumeric},
					},
					{
						Key:                "swell_dir",
						RowIDSuffix:        "_DIRPW",
						RequiresActiveCell: true,
						Extraction: Extraction{
							Strategy:    StrategyAngleAttr,
							SubSelector: &Location{Kind: LocatorCSS, Value: "span"},
							Attribute:   "title",
						},
					},
					{
						Key:                "temperature",
						RowIDSuffix:        "_TMPE",
						RequiresActiveCell: true,
						Extraction:         Extraction{Strategy: StrategyNumeric},
					},
					{
						Key:                "cloud_cover",
						RowIDSuffix:        "_CDC",
						RequiresActiveCell: true,
						Extraction: Extraction{
							Strategy:    StrategyMultiText,
							SubSelector: &Location{Kind: LocatorCSS, Value: "div"},
						},
					},
					{
						Key:                "precip",
						RowIDSuffix:        "_APCP1s",
						RequiresActiveCell: true,
						Extraction:         Extraction{Strategy: StrategyNumeric},
					},
					{
						Key:         "tide",
						RowIDSuffix: "_tides",
						Extraction: Extraction{
							Strategy:  StrategyTideTimes,
							Pattern:   `\d{1,2}:\d{2}`,
							Threshold: 2.5,
						},
					},
				},
			},
		},
	}
}

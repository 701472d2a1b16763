package schema

import (
	"errors"
	"strings"
	"testing"
)

func validTestConfig() *Config {
	return &Config{
		Fields: []Field{
			{
				Name:     "sun",
				Location: Location{Kind: LocatorCSS, Value: ".sun"},
				Extraction: Extraction{
					Strategy: StrategyRegex,
					Pattern:  `(\d{2}:\d{2}) - (\d{2}:\d{2})`,
					Groups:   []string{"sunrise", "sunset"},
				},
			},
		},
		Tables: []Table{
			{
				Key:      "forecast",
				Location: Location{Kind: LocatorID, Value: "tabid_0_0"},
				Columns: []Column{
					{
						Key:         "wind_speed",
						RowIDSuffix: "_WINDSPD",
						Extraction:  Extraction{Strategy: StrategyNumeric},
					},
				},
			},
		},
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name: "empty row id suffix",
			mutate: func(cfg *Config) {
				cfg.Tables[0].Columns[0].RowIDSuffix = ""
			},
			wantErr: "RowIDSuffix",
		},
		{
			name: "group count mismatch",
			mutate: func(cfg *Config) {
				cfg.Fields[0].Extraction.Groups = []string{"sunrise"}
			},
			wantErr: "capture groups",
		},
		{
			name: "regex without pattern",
			mutate: func(cfg *Config) {
				cfg.Fields[0].Extraction.Pattern = ""
				cfg.Fields[0].Extraction.Groups = nil
			},
			wantErr: "requires a pattern",
		},
		{
			name: "invalid pattern",
			mutate: func(cfg *Config) {
				cfg.Fields[0].Extraction.Pattern = `([a-z`
			},
			wantErr: "pattern",
		},
		{
			name: "invalid css selector",
			mutate: func(cfg *Config) {
				cfg.Fields[0].Location = Location{Kind: LocatorCSS, Value: "p["}
			},
			wantErr: "css selector",
		},
		{
			name: "invalid xpath",
			mutate: func(cfg *Config) {
				cfg.Fields[0].Location = Location{Kind: LocatorXPath, Value: "///["}
			},
			wantErr: "xpath",
		},
		{
			name: "unknown locator kind",
			mutate: func(cfg *Config) {
				cfg.Fields[0].Location = Location{Kind: "chain", Value: "x"}
			},
			wantErr: "oneof",
		},
		{
			name: "angle without sub selector",
			mutate: func(cfg *Config) {
				cfg.Tables[0].Columns[0].Extraction = Extraction{
					Strategy:  StrategyAngleAttr,
					Attribute: "title",
				}
			},
			wantErr: "sub_selector",
		},
		{
			name: "angle without attribute",
			mutate: func(cfg *Config) {
				cfg.Tables[0].Columns[0].Extraction = Extraction{
					Strategy:    StrategyAngleAttr,
					SubSelector: &Location{Kind: LocatorCSS, Value: "span"},
				}
			},
			wantErr: "attribute",
		},
		{
			name: "tide without threshold",
			mutate: func(cfg *Config) {
				cfg.Tables[0].Columns[0].Extraction = Extraction{
					Strategy: StrategyTideTimes,
					Pattern:  `\d{1,2}:\d{2}`,
				}
			},
			wantErr: "threshold",
		},
		{
			name: "duplicate column key",
			mutate: func(cfg *Config) {
				cfg.Tables[0].Columns = append(cfg.Tables[0].Columns, Column{
					Key:         "wind_speed",
					RowIDSuffix: "_GUST",
					Extraction:  Extraction{Strategy: StrategyNumeric},
				})
			},
			wantErr: "duplicate column",
		},
		{
			name: "duplicate table key",
			mutate: func(cfg *Config) {
				cfg.Tables = append(cfg.Tables, cfg.Tables[0])
			},
			wantErr: "duplicate table",
		},
		{
			name: "table without columns",
			mutate: func(cfg *Config) {
				cfg.Tables[0].Columns = nil
			},
			wantErr: "min",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validTestConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected *ConfigError, got %T", err)
			}
		})
	}
}

func TestConfigValidateAppliesDefaults(t *testing.T) {
	cfg := validTestConfig()
	cfg.Tables[0].Columns = append(cfg.Tables[0].Columns, Column{
		Key:         "tide",
		RowIDSuffix: "_tides",
		Extraction: Extraction{
			Strategy:  StrategyTideTimes,
			Pattern:   `\d{1,2}:\d{2}`,
			Threshold: 2.5,
		},
	})

	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	table := cfg.Tables[0]
	if table.ActiveClass != DefaultActiveClass {
		t.Fatalf("active class = %q, want %q", table.ActiveClass, DefaultActiveClass)
	}
	if sel := table.Columns[0].CellSelector; sel == nil || sel.Value != "td" {
		t.Fatalf("cell selector default not applied: %+v", sel)
	}

	tide := table.Columns[1].Extraction
	if tide.FirstEvent != "high" {
		t.Fatalf("first event = %q, want high", tide.FirstEvent)
	}
	if tide.AmplitudeOverrides == nil || !*tide.AmplitudeOverrides {
		t.Fatalf("amplitude override default should be true")
	}
}

func TestDefaultSchemaValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default schema should validate, got %v", err)
	}
	if len(cfg.Tables) != 1 || cfg.Tables[0].Key != "forecast" {
		t.Fatalf("default schema should declare the forecast table")
	}
	if cfg.Tables[0].Columns[0].Key != "date_info" {
		t.Fatalf("date_info must stay the first declared column")
	}
}

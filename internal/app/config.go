package app

import (
	"fmt"
	"strings"
	"time"

	coreconfig "github.com/m3rciful/surveybot/core/config"
	coredatabase "github.com/m3rciful/surveybot/core/database"
	"github.com/m3rciful/surveybot/internal/backend"
	"github.com/m3rciful/surveybot/internal/dialog"
	"github.com/m3rciful/surveybot/internal/preview"
	"github.com/m3rciful/surveybot/internal/schedule"
)

// SurveyConfig tunes the mailing calendar and the upload preview.
type SurveyConfig struct {
	Timezone      string `yaml:"timezone" envconfig:"SURVEY_TIMEZONE"`
	CutoffHour    int    `yaml:"cutoff_hour" envconfig:"SURVEY_CUTOFF_HOUR"`
	EndOffsetDays int    `yaml:"end_offset_days" envconfig:"SURVEY_END_OFFSET_DAYS"`
	Candidates    int    `yaml:"candidates" envconfig:"SURVEY_CANDIDATES"`
	SendTime      string `yaml:"send_time" envconfig:"SURVEY_SEND_TIME"`
	PageSize      int    `yaml:"page_size" envconfig:"SURVEY_PAGE_SIZE"`

	location *time.Location
}

// Config is the full application configuration.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Database coredatabase.Config `yaml:"database"`
	Backend  backend.Config      `yaml:"backend"`
	Survey   SurveyConfig        `yaml:"survey"`
}

// CoreConfig exposes the embedded core configuration.
func (c *Config) CoreConfig() *coreconfig.Config { return &c.Config }

// Load reads path, overlays the environment and validates the result.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.LoadInto(path, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadStorage reads only what the maintenance commands need: logging and the database.
func LoadStorage(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.LoadInto(path, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Database.Normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates every section and fills defaults.
func (c *Config) Normalize() error {
	if err := coreconfig.Normalize(&c.Config); err != nil {
		return err
	}
	if err := c.Database.Normalize(); err != nil {
		return err
	}
	// The client normalizes its own copy; validate without mutating.
	probe := c.Backend
	if err := probe.Normalize(); err != nil {
		return err
	}
	return c.Survey.Normalize()
}

// Normalize fills defaults and resolves the timezone.
func (s *SurveyConfig) Normalize() error {
	loc := time.Local
	if tz := strings.TrimSpace(s.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return fmt.Errorf("survey.timezone %q: %w", tz, err)
		}
		loc = l
	}
	s.location = loc

	if s.CutoffHour == 0 {
		s.CutoffHour = schedule.DefaultCutoffHour
	}
	if s.CutoffHour < 0 || s.CutoffHour > 23 {
		return fmt.Errorf("survey.cutoff_hour must be within 0..23")
	}
	if s.EndOffsetDays < 0 || s.Candidates < 0 || s.PageSize < 0 {
		return fmt.Errorf("survey.end_offset_days, candidates and page_size must be >= 0")
	}
	if s.EndOffsetDays == 0 {
		s.EndOffsetDays = schedule.DefaultEndOffsetDays
	}
	if s.Candidates == 0 {
		s.Candidates = schedule.DefaultCandidates
	}
	if s.PageSize == 0 {
		s.PageSize = preview.DefaultPageSize
	}
	if strings.TrimSpace(s.SendTime) == "" {
		s.SendTime = "10:00"
	}
	if _, err := time.Parse("15:04", s.SendTime); err != nil {
		return fmt.Errorf("survey.send_time %q must be HH:MM", s.SendTime)
	}
	return nil
}

// Location is the zone mailing dates are computed in.
func (s SurveyConfig) Location() *time.Location {
	if s.location == nil {
		return time.Local
	}
	return s.location
}

// DialogOptions maps the survey settings onto the conversation engine.
func (s SurveyConfig) DialogOptions() dialog.Options {
	return dialog.Options{
		Location:      s.Location(),
		CutoffHour:    s.CutoffHour,
		EndOffsetDays: s.EndOffsetDays,
		Candidates:    s.Candidates,
		SendTime:      s.SendTime,
		PageSize:      s.PageSize,
	}
}

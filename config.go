package access

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oarkflow/date"
	"gopkg.in/yaml.v3"
)

// ============================================================================
// CONFIGURATION
// ============================================================================

// FlexTime accepts any human timestamp format date.Parse understands
// ("2026-01-02", "02 Jan 2026 15:04", RFC3339, ...).
type FlexTime struct {
	time.Time
}

func (t *FlexTime) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := date.Parse(s)
	if err != nil {
		return fmt.Errorf("parse time %q: %w", s, err)
	}
	t.Time = parsed
	return nil
}

func (t *FlexTime) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := date.Parse(s)
	if err != nil {
		return fmt.Errorf("parse time %q: %w", s, err)
	}
	t.Time = parsed
	return nil
}

func (t FlexTime) MarshalYAML() (any, error) {
	if t.IsZero() {
		return "", nil
	}
	return t.Format(time.RFC3339), nil
}

func (t FlexTime) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return json.Marshal("")
	}
	return json.Marshal(t.Format(time.RFC3339))
}

// LibraryGrantConfig is a LibraryGrant plus a human-readable expiry override.
type LibraryGrantConfig struct {
	LibraryGrant `yaml:",inline" json:",inline"`
	Expires      FlexTime `json:"expires,omitempty" yaml:"expires,omitempty"`
}

// SchoolGrantConfig is a SchoolGrant plus a human-readable expiry override.
type SchoolGrantConfig struct {
	SchoolGrant `yaml:",inline" json:",inline"`
	Expires     FlexTime `json:"expires,omitempty" yaml:"expires,omitempty"`
}

// Config is the complete declarative state of the resolver: roster, catalog,
// grants, exclusions, and engine knobs.
type Config struct {
	Version           uint16                    `json:"version" yaml:"version"`
	Users             []*User                   `json:"users" yaml:"users"`
	Subjects          []*Subject                `json:"subjects" yaml:"subjects"`
	Topics            []*Topic                  `json:"topics,omitempty" yaml:"topics,omitempty"`
	Videos            []*Video                  `json:"videos,omitempty" yaml:"videos,omitempty"`
	Materials         []*Material               `json:"materials,omitempty" yaml:"materials,omitempty"`
	Assessments       []*Assessment             `json:"assessments,omitempty" yaml:"assessments,omitempty"`
	LibraryGrants     []*LibraryGrantConfig     `json:"library_grants" yaml:"library_grants"`
	SchoolGrants      []*SchoolGrantConfig      `json:"school_grants,omitempty" yaml:"school_grants,omitempty"`
	TeacherGrants     []*TeacherGrant           `json:"teacher_grants,omitempty" yaml:"teacher_grants,omitempty"`
	TeacherExclusions []*TeacherExclusion       `json:"teacher_exclusions,omitempty" yaml:"teacher_exclusions,omitempty"`
	SubjectExclusions []*SchoolSubjectExclusion `json:"subject_exclusions,omitempty" yaml:"subject_exclusions,omitempty"`
	Engine            EngineConfig              `json:"engine,omitempty" yaml:"engine,omitempty"`
}

// EngineConfig carries tuning for the ambient pieces around the resolver;
// resolution itself has no knobs.
type EngineConfig struct {
	AuditBuffer             int   `json:"audit_buffer,omitempty" yaml:"audit_buffer,omitempty"`
	CatalogCacheNumCounters int64 `json:"catalog_cache_num_counters,omitempty" yaml:"catalog_cache_num_counters,omitempty"`
	CatalogCacheMaxCost     int64 `json:"catalog_cache_max_cost,omitempty" yaml:"catalog_cache_max_cost,omitempty"`
	CatalogCacheBuffer      int64 `json:"catalog_cache_buffer,omitempty" yaml:"catalog_cache_buffer,omitempty"`
	CatalogCacheTTLMs       int64 `json:"catalog_cache_ttl_ms,omitempty" yaml:"catalog_cache_ttl_ms,omitempty"`
}

// ConfigLoader loads configuration from the supported formats.
type ConfigLoader struct{}

func NewConfigLoader() *ConfigLoader {
	return &ConfigLoader{}
}

func (l *ConfigLoader) LoadYAML(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *ConfigLoader) LoadJSON(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ToYAML exports config to YAML
func (c *Config) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// ToJSON exports config to JSON
func (c *Config) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// Validate checks record invariants and parent pointers without touching any
// store; the config tool runs this before apply.
func (c *Config) Validate() error {
	libByID := make(map[string]*LibraryGrantConfig, len(c.LibraryGrants))
	for _, g := range c.LibraryGrants {
		if err := g.LibraryGrant.Validate(); err != nil {
			return err
		}
		if _, dup := libByID[g.ID]; dup {
			return fmt.Errorf("duplicate library grant ID %s", g.ID)
		}
		libByID[g.ID] = g
	}
	schoolByID := make(map[string]*SchoolGrantConfig, len(c.SchoolGrants))
	for _, g := range c.SchoolGrants {
		if err := g.SchoolGrant.Validate(); err != nil {
			return err
		}
		if _, ok := libByID[g.LibraryGrantID]; !ok {
			return fmt.Errorf("school grant %s: unknown library grant %s", g.ID, g.LibraryGrantID)
		}
		schoolByID[g.ID] = g
	}
	for _, g := range c.TeacherGrants {
		if g.SchoolGrantID == "" {
			return fmt.Errorf("teacher grant %s: school grant ID is required", g.ID)
		}
		if _, ok := schoolByID[g.SchoolGrantID]; !ok {
			return fmt.Errorf("teacher grant %s: unknown school grant %s", g.ID, g.SchoolGrantID)
		}
	}
	for _, x := range c.TeacherExclusions {
		if x.ResourceType == "" || x.ResourceID == "" {
			return fmt.Errorf("teacher exclusion %s: resource type and ID are required", x.ID)
		}
	}
	return nil
}

// UserWriter is implemented by user stores that can be seeded from config.
type UserWriter interface {
	PutUser(ctx context.Context, u *User) error
}

// CatalogWriter is implemented by catalog stores that can be seeded from config.
type CatalogWriter interface {
	PutSubject(ctx context.Context, s *Subject) error
	PutTopic(ctx context.Context, t *Topic) error
	PutVideo(ctx context.Context, v *Video) error
	PutMaterial(ctx context.Context, m *Material) error
	PutAssessment(ctx context.Context, a *Assessment) error
}

// ApplyConfig seeds the engine's stores from a validated config. Roster and
// catalog sections require stores that implement the writer interfaces;
// grants and exclusions go through the engine's management operations so the
// same creation-time validation applies.
func (e *Engine) ApplyConfig(ctx context.Context, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	if len(cfg.Users) > 0 {
		w, ok := e.users.(UserWriter)
		if !ok {
			return fmt.Errorf("config has users but the user store is read-only")
		}
		for _, u := range cfg.Users {
			if err := w.PutUser(ctx, u); err != nil {
				return fmt.Errorf("put user %s: %w", u.ID, err)
			}
		}
	}

	if len(cfg.Subjects)+len(cfg.Topics)+len(cfg.Videos)+len(cfg.Materials)+len(cfg.Assessments) > 0 {
		w, ok := e.catalog.(CatalogWriter)
		if !ok {
			return fmt.Errorf("config has catalog records but the catalog store is read-only")
		}
		for _, s := range cfg.Subjects {
			if err := w.PutSubject(ctx, s); err != nil {
				return fmt.Errorf("put subject %s: %w", s.ID, err)
			}
		}
		for _, t := range cfg.Topics {
			if err := w.PutTopic(ctx, t); err != nil {
				return fmt.Errorf("put topic %s: %w", t.ID, err)
			}
		}
		for _, v := range cfg.Videos {
			if err := w.PutVideo(ctx, v); err != nil {
				return fmt.Errorf("put video %s: %w", v.ID, err)
			}
		}
		for _, m := range cfg.Materials {
			if err := w.PutMaterial(ctx, m); err != nil {
				return fmt.Errorf("put material %s: %w", m.ID, err)
			}
		}
		for _, a := range cfg.Assessments {
			if err := w.PutAssessment(ctx, a); err != nil {
				return fmt.Errorf("put assessment %s: %w", a.ID, err)
			}
		}
	}

	libByID := make(map[string]*LibraryGrant, len(cfg.LibraryGrants))
	for _, gc := range cfg.LibraryGrants {
		g := gc.LibraryGrant
		if !gc.Expires.IsZero() {
			g.ExpiresAt = gc.Expires.Time
		}
		wasActive := g.Active
		if err := e.GrantLibraryAccess(ctx, &g); err != nil {
			return fmt.Errorf("grant library access %s: %w", g.ID, err)
		}
		// configs may declare exclusion markers directly as inactive rows
		if !wasActive {
			if err := e.RevokeLibraryAccess(ctx, g.ID); err != nil {
				return fmt.Errorf("deactivate library grant %s: %w", g.ID, err)
			}
		}
		libByID[g.ID] = &g
	}
	schoolByID := make(map[string]*SchoolGrant, len(cfg.SchoolGrants))
	for _, gc := range cfg.SchoolGrants {
		g := gc.SchoolGrant
		if !gc.Expires.IsZero() {
			g.ExpiresAt = gc.Expires.Time
		}
		if err := e.GrantSchoolAccess(ctx, &g, libByID[g.LibraryGrantID]); err != nil {
			return fmt.Errorf("grant school access %s: %w", g.ID, err)
		}
		schoolByID[g.ID] = &g
	}
	for _, g := range cfg.TeacherGrants {
		if g.SchoolID == "" {
			if parent, ok := schoolByID[g.SchoolGrantID]; ok {
				g.SchoolID = parent.SchoolID
			}
		}
		if err := e.GrantTeacherAccess(ctx, g); err != nil {
			return fmt.Errorf("grant teacher access %s: %w", g.ID, err)
		}
	}
	for _, x := range cfg.TeacherExclusions {
		if err := e.ExcludeResource(ctx, x); err != nil {
			return fmt.Errorf("exclude resource %s: %w", x.ID, err)
		}
	}
	for _, x := range cfg.SubjectExclusions {
		if err := e.ExcludeSubject(ctx, x); err != nil {
			return fmt.Errorf("exclude subject %s: %w", x.ID, err)
		}
	}
	return nil
}

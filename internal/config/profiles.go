package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"capfolio/internal/logger"
)

// Profile is a named user-config preset operators can assign to users.
type Profile struct {
	Description           string             `mapstructure:"description" yaml:"description"`
	AssetWeightings       map[string]float64 `mapstructure:"asset_weightings" yaml:"asset_weightings"`
	ExcludedTags          []string           `mapstructure:"excluded_tags" yaml:"excluded_tags"`
	TopCount              int                `mapstructure:"top_count" yaml:"top_count"`
	Smoothing             int                `mapstructure:"smoothing" yaml:"smoothing"`
	NthRoot               float64            `mapstructure:"nth_root" yaml:"nth_root"`
	DustLimit             float64            `mapstructure:"dust_limit" yaml:"dust_limit"`
	RebalanceThreshold    float64            `mapstructure:"rebalance_threshold" yaml:"rebalance_threshold"`
	AllocQuote            float64            `mapstructure:"alloc_quote" yaml:"alloc_quote"`
	AllocQuoteFagMultiply bool               `mapstructure:"alloc_quote_fag_multiply" yaml:"alloc_quote_fag_multiply"`
	SidelineCurrency      string             `mapstructure:"sideline_currency" yaml:"sideline_currency"`
	IntervalHours         int                `mapstructure:"interval_hours" yaml:"interval_hours"`
}

type profileFile struct {
	Profiles map[string]Profile `mapstructure:"profiles" yaml:"profiles"`
}

const profileSchemaJSON = `{
  "type": "object",
  "properties": {
    "description": {"type": "string"},
    "asset_weightings": {
      "type": "object",
      "additionalProperties": {"type": "number", "minimum": 0}
    },
    "excluded_tags": {"type": "array", "items": {"type": "string"}},
    "top_count": {"type": "integer", "minimum": 1, "maximum": 100},
    "smoothing": {"type": "integer", "minimum": 1},
    "nth_root": {"type": "number", "exclusiveMinimum": 0},
    "dust_limit": {"type": "number", "minimum": 0},
    "rebalance_threshold": {"type": "number", "minimum": 0},
    "alloc_quote": {"type": "number", "minimum": 0, "maximum": 100},
    "alloc_quote_fag_multiply": {"type": "boolean"},
    "sideline_currency": {"type": "string"},
    "interval_hours": {"type": "integer", "minimum": 1}
  },
  "additionalProperties": false
}`

// ProfileRegistry loads preset profiles from a YAML file and reloads them
// when the file changes.
type ProfileRegistry struct {
	path   string
	v      *viper.Viper
	schema *jsonschema.Schema

	mu       sync.RWMutex
	loadedAt time.Time
	profiles map[string]Profile
}

// NewProfileRegistry reads the profile file and starts watching it.
func NewProfileRegistry(path string) (*ProfileRegistry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("profile registry requires path")
	}
	schema, err := jsonschema.CompileString("profile.schema.json", profileSchemaJSON)
	if err != nil {
		return nil, fmt.Errorf("compiling profile schema failed: %w", err)
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read profile config failed: %w", err)
	}
	r := &ProfileRegistry{path: path, v: v, schema: schema}
	if err := r.reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := r.reload(); err != nil {
			logger.Errorf("profile reload failed: %v", err)
		}
	})
	v.WatchConfig()
	return r, nil
}

func (r *ProfileRegistry) reload() error {
	raw, err := yamlFileToJSON(r.path)
	if err != nil {
		return err
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("profile file is not a mapping: %w", err)
	}
	profilesNode, _ := doc["profiles"].(map[string]any)
	for name, node := range profilesNode {
		if err := r.schema.Validate(node); err != nil {
			return fmt.Errorf("profile %q invalid: %w", name, err)
		}
	}

	tmp := viper.New()
	tmp.SetConfigFile(r.path)
	if err := tmp.ReadInConfig(); err != nil {
		return err
	}
	var file profileFile
	if err := tmp.Unmarshal(&file); err != nil {
		return fmt.Errorf("parsing profiles failed: %w", err)
	}

	r.mu.Lock()
	r.profiles = file.Profiles
	r.loadedAt = time.Now()
	r.mu.Unlock()
	logger.Infof("loaded %d rebalance profiles from %s", len(file.Profiles), r.path)
	return nil
}

// Names returns the profile names sorted.
func (r *ProfileRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.profiles))
	for name := range r.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Apply copies the named preset onto a user config and normalizes it.
func (r *ProfileRegistry) Apply(name, userID string) (*UserConfig, error) {
	r.mu.RLock()
	p, ok := r.profiles[strings.TrimSpace(name)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown profile %q", name)
	}
	cfg := &UserConfig{
		UserID:                userID,
		AssetWeightings:       make(map[string]decimal.Decimal, len(p.AssetWeightings)),
		ExcludedTags:          append([]string(nil), p.ExcludedTags...),
		TopCount:              p.TopCount,
		Smoothing:             p.Smoothing,
		NthRoot:               decimal.NewFromFloat(p.NthRoot),
		DustLimit:             decimal.NewFromFloat(p.DustLimit),
		RebalanceThreshold:    decimal.NewFromFloat(p.RebalanceThreshold),
		AllocQuote:            decimal.NewFromFloat(p.AllocQuote),
		AllocQuoteFagMultiply: p.AllocQuoteFagMultiply,
		SidelineCurrency:      p.SidelineCurrency,
		IntervalHours:         p.IntervalHours,
	}
	for sym, w := range p.AssetWeightings {
		cfg.AssetWeightings[sym] = decimal.NewFromFloat(w)
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func yamlFileToJSON(path string) ([]byte, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := yaml.NewEncoder(&buf).Encode(v.AllSettings()); err != nil {
		return nil, err
	}
	var node any
	if err := yaml.Unmarshal(buf.Bytes(), &node); err != nil {
		return nil, err
	}
	return json.Marshal(node)
}

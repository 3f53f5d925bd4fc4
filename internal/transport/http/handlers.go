package statushttp

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"capfolio/internal/config"
	"capfolio/internal/scheduler"
	"capfolio/internal/store"
)

type handlers struct {
	configs  store.ConfigStore
	events   store.EventStore
	auto     *scheduler.Automation
	profiles *config.ProfileRegistry
}

// userConfigDTO is the request-parameter to field mapping for UserConfig.
// Decimal fields travel as JSON numbers; Normalize clamps everything.
type userConfigDTO struct {
	AssetWeightings       map[string]float64 `json:"asset_weightings"`
	ExcludedTags          []string           `json:"excluded_tags"`
	TopCount              int                `json:"top_count"`
	Smoothing             int                `json:"smoothing"`
	NthRoot               float64            `json:"nth_root"`
	DustLimit             float64            `json:"dust_limit"`
	RebalanceThreshold    float64            `json:"rebalance_threshold"`
	AllocQuote            float64            `json:"alloc_quote"`
	AllocQuoteFagMultiply bool               `json:"alloc_quote_fag_multiply"`
	Takeout               float64            `json:"takeout"`
	SidelineCurrency      string             `json:"sideline_currency"`
	IntervalHours         int                `json:"interval_hours"`
	AutomationEnabled     bool               `json:"automation_enabled"`
}

func (d *userConfigDTO) toConfig(userID string) (*config.UserConfig, error) {
	cfg := &config.UserConfig{
		UserID:                userID,
		AssetWeightings:       make(map[string]decimal.Decimal, len(d.AssetWeightings)),
		ExcludedTags:          d.ExcludedTags,
		TopCount:              d.TopCount,
		Smoothing:             d.Smoothing,
		NthRoot:               decimal.NewFromFloat(d.NthRoot),
		DustLimit:             decimal.NewFromFloat(d.DustLimit),
		RebalanceThreshold:    decimal.NewFromFloat(d.RebalanceThreshold),
		AllocQuote:            decimal.NewFromFloat(d.AllocQuote),
		AllocQuoteFagMultiply: d.AllocQuoteFagMultiply,
		Takeout:               decimal.NewFromFloat(d.Takeout),
		SidelineCurrency:      d.SidelineCurrency,
		IntervalHours:         d.IntervalHours,
		AutomationEnabled:     d.AutomationEnabled,
	}
	for sym, w := range d.AssetWeightings {
		cfg.AssetWeightings[sym] = decimal.NewFromFloat(w)
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromConfig(cfg *config.UserConfig) userConfigDTO {
	dto := userConfigDTO{
		AssetWeightings:       make(map[string]float64, len(cfg.AssetWeightings)),
		ExcludedTags:          cfg.ExcludedTags,
		TopCount:              cfg.TopCount,
		Smoothing:             cfg.Smoothing,
		AllocQuoteFagMultiply: cfg.AllocQuoteFagMultiply,
		SidelineCurrency:      cfg.SidelineCurrency,
		IntervalHours:         cfg.IntervalHours,
		AutomationEnabled:     cfg.AutomationEnabled,
	}
	dto.NthRoot, _ = cfg.NthRoot.Float64()
	dto.DustLimit, _ = cfg.DustLimit.Float64()
	dto.RebalanceThreshold, _ = cfg.RebalanceThreshold.Float64()
	dto.AllocQuote, _ = cfg.AllocQuote.Float64()
	dto.Takeout, _ = cfg.Takeout.Float64()
	for sym, w := range cfg.AssetWeightings {
		dto.AssetWeightings[sym], _ = w.Float64()
	}
	return dto
}

func (h *handlers) recentEvents(c *gin.Context) {
	if h.events == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event store disabled"})
		return
	}
	events, err := h.events.RecentEvents(c.Request.Context(), parseLimit(c, 50))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (h *handlers) listProfiles(c *gin.Context) {
	if h.profiles == nil {
		c.JSON(http.StatusOK, gin.H{"profiles": []string{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"profiles": h.profiles.Names()})
}

func (h *handlers) getConfig(c *gin.Context) {
	cfg, err := h.configs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, fromConfig(cfg))
}

// putConfig replaces a user's configuration. With ?profile=name the named
// preset seeds the config and the body is ignored.
func (h *handlers) putConfig(c *gin.Context) {
	userID := c.Param("id")

	if name := c.Query("profile"); name != "" {
		if h.profiles == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "profiles not configured"})
			return
		}
		cfg, err := h.profiles.Apply(name, userID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := h.configs.Save(c.Request.Context(), cfg); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, fromConfig(cfg))
		return
	}

	var dto userConfigDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cfg, err := dto.toConfig(userID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.configs.Save(c.Request.Context(), cfg); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, fromConfig(cfg))
}

// triggerRebalance runs one manual rebalance; ?simulate=true estimates fees
// with venue test orders instead of moving funds.
func (h *handlers) triggerRebalance(c *gin.Context) {
	simulate := c.Query("simulate") == "true"
	started := time.Now()
	outcome, err := h.auto.RebalanceUser(c.Request.Context(), c.Param("id"), simulate)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	errs := make([]string, 0, len(outcome.Errors))
	for _, e := range outcome.Errors {
		errs = append(errs, e.Error())
	}
	c.JSON(http.StatusOK, gin.H{
		"simulate": simulate,
		"trades":   outcome.Trades(),
		"orders":   len(outcome.Orders),
		"errors":   errs,
		"took_ms":  time.Since(started).Milliseconds(),
	})
}

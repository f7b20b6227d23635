package collector

import (
	"time"

	"image-collector/internal/common/config"
	"image-collector/internal/imaging"
	"image-collector/internal/sources"
)

// Config holds the collection defaults a run falls back to when its Options
// leave a field unset.
type Config struct {
	TargetCount     int
	MaxRetries      int
	RetryInterval   time.Duration
	ErrorLogSize    int
	PerPage         int
	CandidateFactor int
	MaxTerms        int
	Sources         []string
	UseAIGeneration bool
	DedupDistance   int
	LockTTL         time.Duration
	CacheControl    string
}

func ConfigFromApp(cfg *config.Config) Config {
	c := cfg.Collection
	return Config{
		TargetCount:     c.TargetCount,
		MaxRetries:      c.MaxRetries,
		RetryInterval:   config.GetDuration(c.RetryInterval),
		ErrorLogSize:    c.ErrorLogSize,
		PerPage:         c.PerPage,
		CandidateFactor: c.CandidateFactor,
		MaxTerms:        c.MaxTerms,
		Sources:         sources.EnabledNames(cfg.Sources, c.Sources),
		UseAIGeneration: c.UseAIGeneration && cfg.Generator.Enabled,
		DedupDistance:   c.DedupDistance,
		LockTTL:         config.GetDuration(cfg.Database.Redis.LockTTL),
		CacheControl:    cfg.Storage.CacheControl,
	}
}

func (c Config) withDefaults() Config {
	if c.TargetCount <= 0 {
		c.TargetCount = 3
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = time.Hour
	}
	if c.ErrorLogSize <= 0 {
		c.ErrorLogSize = 10
	}
	if c.PerPage <= 0 {
		c.PerPage = 10
	}
	if c.CandidateFactor <= 0 {
		c.CandidateFactor = 4
	}
	if c.MaxTerms <= 0 {
		c.MaxTerms = defaultMaxTerms
	}
	if c.DedupDistance <= 0 {
		c.DedupDistance = imaging.DuplicateDistance
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 10 * time.Minute
	}
	return c
}

// Options are the per-run settings of one collect call.
type Options struct {
	TargetCount     int
	Sources         []string
	MinQualityScore *float64
	UseAIGeneration *bool
	MaxRetries      int
	ForceRestart    bool
}

// resolved is Options with every default filled in.
type resolved struct {
	targetCount     int
	sources         []string
	minQualityScore *float64
	useAIGeneration bool
	maxRetries      int
	forceRestart    bool
}

func (c Config) resolve(o Options) resolved {
	r := resolved{
		targetCount:     o.TargetCount,
		sources:         o.Sources,
		minQualityScore: o.MinQualityScore,
		useAIGeneration: c.UseAIGeneration,
		maxRetries:      o.MaxRetries,
		forceRestart:    o.ForceRestart,
	}
	if r.targetCount <= 0 {
		r.targetCount = c.TargetCount
	}
	if len(r.sources) == 0 {
		r.sources = c.Sources
	}
	if o.UseAIGeneration != nil {
		r.useAIGeneration = *o.UseAIGeneration
	}
	if r.maxRetries <= 0 {
		r.maxRetries = c.MaxRetries
	}
	return r
}

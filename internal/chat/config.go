package chat

import (
	"time"

	"github.com/raphaelgruber/oskour/internal/models"
)

// Variant selects the audience of a chat widget.
type Variant string

const (
	VariantUser       Variant = "user"
	VariantTechnician Variant = "technician"
	VariantAdmin      Variant = "admin"
)

// ParseVariant validates a variant name.
func ParseVariant(s string) (Variant, bool) {
	switch Variant(s) {
	case VariantUser, VariantTechnician, VariantAdmin:
		return Variant(s), true
	default:
		return "", false
	}
}

// Config is the per-widget configuration. One controller serves every variant;
// only this value differs between them.
type Config struct {
	Variant       Variant
	TrendingTitle string
	Source        models.SourceScope
	KnowledgeBase string
	Model         string

	TrendingLimit    int
	TrendingInterval time.Duration
	TypingDelayMin   time.Duration
	TypingDelayMax   time.Duration
}

// DefaultConfig returns the configuration for a variant.
func DefaultConfig(v Variant) Config {
	cfg := Config{
		Variant:          v,
		TrendingLimit:    5,
		TrendingInterval: 5 * time.Minute,
		TypingDelayMin:   500 * time.Millisecond,
		TypingDelayMax:   time.Second,
	}
	switch v {
	case VariantTechnician:
		cfg.TrendingTitle = "Questions des techniciens"
		cfg.Source = models.SourceAdmin
	case VariantAdmin:
		cfg.TrendingTitle = "Tendances globales"
		cfg.Source = models.SourceAll
	default:
		cfg.Variant = VariantUser
		cfg.TrendingTitle = "Questions fréquentes"
		cfg.Source = models.SourceUser
	}
	return cfg
}

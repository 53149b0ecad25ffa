package types

import (
	"fmt"
	"strings"

	"github.com/xtxerr/gemrate/internal/errors"
)

// Kind is the exchange direction a dataset tracks.
type Kind int

const (
	// KindGemToGold is the gold paid out per 100 gems.
	KindGemToGold Kind = iota

	// KindGoldToGem is the gold needed to buy 100 gems.
	KindGoldToGem
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindGemToGold:
		return "gem_to_gold"
	case KindGoldToGem:
		return "gold_to_gem"
	default:
		return fmt.Sprintf("unknown(%d)", k)
	}
}

// Label returns a human-readable title for charts and tables.
func (k Kind) Label() string {
	switch k {
	case KindGemToGold:
		return "Gems to Gold"
	case KindGoldToGem:
		return "Gold to Gems"
	default:
		return k.String()
	}
}

// DefaultTable returns the tick table name used when none is configured.
func (k Kind) DefaultTable() string {
	return k.String() + "_rate"
}

// Valid reports whether k is one of AllKinds.
func (k Kind) Valid() bool {
	return k == KindGemToGold || k == KindGoldToGem
}

// ParseKind parses a kind string. Hyphens are accepted in place of
// underscores so URLs like /series/gem-to-gold/raw work too.
func ParseKind(s string) (Kind, error) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_") {
	case "gem_to_gold":
		return KindGemToGold, nil
	case "gold_to_gem":
		return KindGoldToGem, nil
	default:
		return 0, fmt.Errorf("%q: %w", s, errors.ErrUnknownKind)
	}
}

// AllKinds returns all kinds in display order.
func AllKinds() []Kind {
	return []Kind{KindGemToGold, KindGoldToGem}
}

// SeriesName selects one of the three series a dataset maintains.
type SeriesName int

const (
	SeriesRaw SeriesName = iota
	SeriesDaily
	SeriesWeekly
)

// String returns the string representation of the series name.
func (s SeriesName) String() string {
	switch s {
	case SeriesRaw:
		return "raw"
	case SeriesDaily:
		return "daily"
	case SeriesWeekly:
		return "weekly"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// ParseSeriesName parses a series name string.
func ParseSeriesName(s string) (SeriesName, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "raw":
		return SeriesRaw, nil
	case "daily", "24h":
		return SeriesDaily, nil
	case "weekly", "7d":
		return SeriesWeekly, nil
	default:
		return 0, fmt.Errorf("%q: %w", s, errors.ErrUnknownSeries)
	}
}

// AllSeries returns all series names in chart order.
func AllSeries() []SeriesName {
	return []SeriesName{SeriesRaw, SeriesDaily, SeriesWeekly}
}

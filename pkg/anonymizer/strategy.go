package anonymizer

import (
	"fmt"
	"strings"
)

// Strategy selects how real identifiers are turned into tokens.
type Strategy string

const (
	// StrategySequential issues metric_NNN / dimension_NNN in catalog order.
	StrategySequential Strategy = "sequential"
	// StrategyCategorical issues <category>_metric_NNN, numbered per category.
	StrategyCategorical Strategy = "categorical"
	// StrategyHash issues metric_<hex> from a keyed hash of the identifier.
	StrategyHash Strategy = "hash"
	// StrategyNone exposes real identifiers. Only for deployments whose
	// intent extractor runs inside the trusted boundary.
	StrategyNone Strategy = "none"
)

var strategyAliases = map[string]Strategy{
	"sequential":  StrategySequential,
	"generic":     StrategySequential,
	"categorical": StrategyCategorical,
	"category":    StrategyCategorical,
	"hash":        StrategyHash,
	"none":        StrategyNone,
	"disabled":    StrategyNone,
}

// ParseStrategy resolves a configured strategy name.
func ParseStrategy(s string) (Strategy, error) {
	st, ok := strategyAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("unknown anonymization strategy %q", s)
	}
	return st, nil
}

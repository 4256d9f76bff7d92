package interp

import (
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// DefaultEpsilon stabilizes divisions against zero-valued denominators.
const DefaultEpsilon = 1e-9

// Epsilon is the configured denominator stabilizer. UsedFallback records
// that the configured value was unusable and the default took its place,
// so callers can surface the recovery instead of burying it in a log line.
type Epsilon struct {
	Value        float64
	UsedFallback bool
}

// ParseEpsilon interprets a configured epsilon. An empty string selects the
// default silently; a non-numeric or non-positive value falls back to the
// default with a warning and the fallback flag set. Never fails.
func ParseEpsilon(raw string) Epsilon {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Epsilon{Value: DefaultEpsilon}
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 {
		zap.L().Warn("interp: invalid epsilon, using default",
			zap.String("configured", raw),
			zap.Float64("default", DefaultEpsilon),
		)
		return Epsilon{Value: DefaultEpsilon, UsedFallback: true}
	}
	return Epsilon{Value: v}
}

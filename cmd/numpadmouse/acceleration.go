package main

// AccelConfig contains the tunable parameters of the acceleration curve.
//
// The curve has three regimes:
//   - hold <= MinPoint ticks: MinStep
//   - MinPoint < hold <= MaxPoint: linear ramp from MinStep to MaxStep (truncated)
//   - hold > MaxPoint: MaxStep
type AccelConfig struct {
	MinStep  int32  // Step while the hold is short
	MaxStep  int32  // Saturated step
	MinPoint uint64 // Ticks held before acceleration starts
	MaxPoint uint64 // Ticks held at which the step saturates
}

// newAccelConfig fills defaults for any zero field.
func newAccelConfig(cfg AccelConfig) AccelConfig {
	if cfg.MinStep == 0 {
		cfg.MinStep = defaultMinStep
	}
	if cfg.MaxStep == 0 {
		cfg.MaxStep = defaultMaxStep
	}
	if cfg.MinPoint == 0 && cfg.MaxPoint == 0 {
		cfg.MinPoint = defaultMinPoint
		cfg.MaxPoint = defaultMaxPoint
	}
	return cfg
}

// step maps a hold duration in ticks to a movement step.
//
// The ramp uses integer arithmetic so that truncation is exact: the
// result is MinStep + floor((ticks-MinPoint)*(MaxStep-MinStep)/(MaxPoint-MinPoint)).
func (c AccelConfig) step(ticks uint64) int32 {
	switch {
	case ticks <= c.MinPoint:
		return c.MinStep
	case ticks <= c.MaxPoint:
		span := c.MaxPoint - c.MinPoint
		rise := uint64(c.MaxStep - c.MinStep)
		return c.MinStep + int32((ticks-c.MinPoint)*rise/span)
	default:
		return c.MaxStep
	}
}

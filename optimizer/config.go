package optimizer

// WithTemperature overrides the per-variant sampling temperature
// (spec.md §4.6 default 0.9).
func WithTemperature(temperature float64) Option {
	return func(o *Optimizer) { o.temperature = temperature }
}

// WithDefaultNumVariants overrides the variant count used when
// GenerateVariants is called with numVariants <= 0.
func WithDefaultNumVariants(n int) Option {
	return func(o *Optimizer) {
		if n > 0 {
			o.defaultNumVariants = n
		}
	}
}

// WithMaxRepairAttempts overrides how many repair calls a slot-violating
// variant gets before it is discarded (spec.md §4.6 step 3, default 1).
func WithMaxRepairAttempts(n int) Option {
	return func(o *Optimizer) {
		if n >= 0 {
			o.maxRepairAttempts = n
		}
	}
}

// WithDiversityThreshold overrides the normalized edit distance floor
// below which a variant is discarded as a near-duplicate (spec.md §4.6's
// diversity requirement, default 0.05).
func WithDiversityThreshold(threshold float64) Option {
	return func(o *Optimizer) {
		if threshold >= 0 {
			o.diversityThreshold = threshold
		}
	}
}

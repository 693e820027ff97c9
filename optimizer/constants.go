package optimizer

// Default configuration values for spec.md §4.6.
const (
	// DefaultTemperature is the sampling temperature used for variant
	// calls; higher than the evaluator's to encourage diversity.
	DefaultTemperature = 0.9

	// DefaultNumVariants and MaxNumVariants bound num_variants per the
	// spec's "default 3-5" guidance.
	DefaultNumVariants = 3
	MaxNumVariants     = 5

	// DefaultMaxRepairAttempts is the number of repair calls made for a
	// variant that violates the slot invariant before it is discarded.
	DefaultMaxRepairAttempts = 1

	// DefaultDiversityThreshold is the normalized edit distance floor
	// below which a variant is treated as a near-duplicate and discarded.
	DefaultDiversityThreshold = 0.05
)

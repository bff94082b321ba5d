package ruleengine

import "fmt"

// Rollout gate bucket names.
const (
	rolloutOn  = "ON"
	rolloutOff = "OFF"
)

// Select picks a variant key by cumulative-sum bucketing: buckets are walked in
// order and the first one whose running total strictly exceeds the percentile
// wins. The list must be non-empty, free of negative shares, and sum to 100.
func Select(percentile int, buckets []Allocation) (string, error) {
	if err := validateAllocations(buckets); err != nil {
		return "", err
	}

	cumulative := 0
	for _, b := range buckets {
		cumulative += b.Percentage
		if percentile < cumulative {
			return b.Variant, nil
		}
	}

	// Only reachable with a percentile outside [0, 100).
	return "", fmt.Errorf("%w: percentile %d out of range", ErrInvalidAllocation, percentile)
}

func validateAllocations(buckets []Allocation) error {
	if len(buckets) == 0 {
		return fmt.Errorf("%w: no buckets", ErrInvalidAllocation)
	}

	total := 0
	for _, b := range buckets {
		if b.Percentage < 0 || b.Percentage > 100 {
			return fmt.Errorf("%w: bucket %q has percentage %d", ErrInvalidAllocation, b.Variant, b.Percentage)
		}
		total += b.Percentage
	}

	if total != 100 {
		return fmt.Errorf("%w: percentages sum to %d, expected 100", ErrInvalidAllocation, total)
	}
	return nil
}

// rolloutAllocation is the synthetic two-bucket split used by the rollout gate.
func rolloutAllocation(percentage int) []Allocation {
	return []Allocation{
		{Variant: rolloutOn, Percentage: percentage},
		{Variant: rolloutOff, Percentage: 100 - percentage},
	}
}

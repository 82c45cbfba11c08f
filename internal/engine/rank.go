package engine

import (
	"regexp"
	"strconv"
	"strings"
)

// PackageRank is the outcome of comparing two package names for one product.
type PackageRank int

const (
	// RankUnknown means the pair cannot be ordered under any known scheme.
	// It must never be treated as an upgrade or a downgrade; unrankable
	// pairs are excluded from all counts and surfaced for data-quality
	// review.
	RankUnknown PackageRank = iota
	RankLess
	RankEqual
	RankGreater
)

func (r PackageRank) String() string {
	switch r {
	case RankLess:
		return "less"
	case RankEqual:
		return "equal"
	case RankGreater:
		return "greater"
	default:
		return "unknown"
	}
}

// RankResolver orders two package names within a product family. Rank returns
// how a compares to b. Implementations must be safe for concurrent use.
type RankResolver interface {
	Rank(productCode, a, b string) PackageRank
}

var reDigits = regexp.MustCompile(`\d+`)

// editionLadder orders common edition words. Matching is case-insensitive
// substring containment; a name matching more than one rung is ambiguous.
var editionLadder = []string{"base", "standard", "professional", "premium", "enterprise"}

// TierResolver is the default RankResolver. It first tries to extract an
// embedded numeric tier from each name ("P4" -> 4, "ExpIQ X3" -> 3,
// "Large 500" -> 500), taking the last integer in the name. If either side
// has no numeric tier it falls back to the edition ladder. Anything else is
// Unknown.
type TierResolver struct{}

func (TierResolver) Rank(productCode, a, b string) PackageRank {
	if na, ok := numericTier(a); ok {
		if nb, ok := numericTier(b); ok {
			return compareInt(na, nb)
		}
		return RankUnknown
	}

	ea, okA := editionTier(a)
	eb, okB := editionTier(b)
	if okA && okB {
		return compareInt(int64(ea), int64(eb))
	}
	return RankUnknown
}

// numericTier returns the last integer embedded in a package name.
func numericTier(name string) (int64, bool) {
	matches := reDigits.FindAllString(name, -1)
	if len(matches) == 0 {
		return 0, false
	}
	n, err := strconv.ParseInt(matches[len(matches)-1], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// editionTier maps a name to its rung on the edition ladder. Names matching
// zero or multiple rungs have no edition tier.
func editionTier(name string) (int, bool) {
	lower := strings.ToLower(name)
	tier, matched := 0, 0
	for i, word := range editionLadder {
		if strings.Contains(lower, word) {
			tier = i + 1
			matched++
		}
	}
	if matched != 1 {
		return 0, false
	}
	return tier, true
}

func compareInt(a, b int64) PackageRank {
	switch {
	case a < b:
		return RankLess
	case a > b:
		return RankGreater
	default:
		return RankEqual
	}
}

// Compile-time check that TierResolver implements RankResolver.
var _ RankResolver = TierResolver{}

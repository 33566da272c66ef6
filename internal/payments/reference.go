package payments

import (
	"strings"

	"github.com/google/uuid"
)

// sourcePrefixes maps a sales channel to its reference prefix. Unknown
// channels fall back to the black-friday prefix, which was the first funnel
// and doubles as the catch-all.
var sourcePrefixes = map[string]string{
	"black_friday": "BF",
	"checkout":     "CK",
	"packages":     "PK",
	"pricing":      "PR",
	"payment":      "PM",
	"ramadan":      "RM",
}

const defaultPrefix = "BF"

// knownSources, in the precedence order used when deriving a channel from the
// originating page path.
var knownSources = []string{"ramadan", "packages", "checkout", "pricing", "payment", "black_friday"}

// NewReference generates a channel-prefixed, collision-resistant payment
// reference: two-letter prefix, dash, 32 uppercase hex characters (128 bits).
func NewReference(source string) string {
	prefix, ok := sourcePrefixes[NormalizeSource(source)]
	if !ok {
		prefix = defaultPrefix
	}
	token := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return prefix + "-" + token
}

// NormalizeSource lowercases and canonicalizes a channel tag.
func NormalizeSource(source string) string {
	source = strings.ToLower(strings.TrimSpace(source))
	source = strings.ReplaceAll(source, "-", "_")
	return source
}

// DeriveSource resolves the sales channel for a purchase: an explicit field
// wins, otherwise the originating page path is scanned for known channel
// names in precedence order, and black_friday is the fallback.
func DeriveSource(explicit, pagePath string) string {
	if normalized := NormalizeSource(explicit); normalized != "" {
		if _, ok := sourcePrefixes[normalized]; ok {
			return normalized
		}
	}

	path := NormalizeSource(pagePath)
	for _, source := range knownSources {
		if strings.Contains(path, source) {
			return source
		}
	}
	return "black_friday"
}

// PrefixFor returns the reference prefix for a channel (with the dash).
func PrefixFor(source string) string {
	prefix, ok := sourcePrefixes[NormalizeSource(source)]
	if !ok {
		prefix = defaultPrefix
	}
	return prefix + "-"
}

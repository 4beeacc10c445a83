// Package routing decides which processing path serves a request. The
// decision is a pure function of the request shape and the user's tier:
// no I/O, no stored state.
package routing

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/equaltechbd/cortexa/pkg/cortexa"
)

// ProcessingTier selects which backend capability path handles a request.
type ProcessingTier int

const (
	// Economy is the cheap path for short, simple, text-only exchanges
	Economy ProcessingTier = iota
	// Standard is the full-capability path
	Standard
)

func (t ProcessingTier) String() string {
	switch t {
	case Economy:
		return "economy"
	case Standard:
		return "standard"
	default:
		return "unknown"
	}
}

// Decision is the routing outcome for one request. It is derived, never
// persisted.
type Decision struct {
	ProcessingTier      ProcessingTier
	AugmentationEnabled bool

	// SessionKey is a deterministic function of the routing/config context.
	// A key change means the backend conversation must be discarded and
	// recreated.
	SessionKey string
}

// Policy maps a request's shape and the user's tier to a routing decision.
type Policy struct {
	tiers   cortexa.TierPolicyTable
	config  Config
	lexicon map[string]struct{}
}

// NewPolicy creates a routing policy over the given tier table.
func NewPolicy(tiers cortexa.TierPolicyTable, config Config) *Policy {
	if tiers == nil {
		tiers = cortexa.DefaultTierPolicies()
	}
	if config.LengthThreshold <= 0 {
		config.LengthThreshold = DefaultLengthThreshold
	}
	if config.Lexicon == nil {
		config.Lexicon = DefaultLexicon()
	}

	lexicon := make(map[string]struct{}, len(config.Lexicon))
	for _, term := range config.Lexicon {
		lexicon[strings.ToLower(term)] = struct{}{}
	}

	return &Policy{
		tiers:   tiers,
		config:  config,
		lexicon: lexicon,
	}
}

// Decide returns the routing decision for a request. Any signal of richer
// need (an active override, an attachment, length, a recognized intent
// keyword) escalates to the standard path: false negatives degrade answer
// quality, so the heuristic leans toward escalation.
func (p *Policy) Decide(req cortexa.RequestContext) Decision {
	tier := Economy
	switch {
	case req.ForcedMode != "":
		// Overrides pin to the full path and disable augmentation to keep
		// instructional responses deterministic and scoped.
		tier = Standard
	case req.HasAttachment:
		// The economy path cannot accept non-text payloads.
		tier = Standard
	case req.TextLength >= p.config.LengthThreshold || req.LexicalSignal:
		tier = Standard
	}

	policy, ok := p.tiers.Policy(req.Tier)
	augmentation := ok &&
		tier == Standard &&
		policy.AugmentedSearchAllowed &&
		req.ForcedMode == ""

	return Decision{
		ProcessingTier:      tier,
		AugmentationEnabled: augmentation,
		SessionKey:          SessionKey(req.Locale, req.Role, req.Tier, tier, req.ForcedMode),
	}
}

// DetectLexicalSignal reports whether any word of the text matches the
// routing lexicon. Matching is case-insensitive on whitespace-split words
// with common punctuation trimmed.
func (p *Policy) DetectLexicalSignal(text string) bool {
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,;:!?\"'()[]")
		if _, ok := p.lexicon[word]; ok {
			return true
		}
	}
	return false
}

// SessionKey derives the deterministic key binding a conversation to its
// backend session. Any change in the inputs invalidates the bound handle.
func SessionKey(locale, role string, tier cortexa.Tier, processingTier ProcessingTier, forcedMode string) string {
	h := sha256.New()
	for _, part := range []string{locale, role, string(tier), processingTier.String(), forcedMode} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

package cortexa

import (
	"time"
)

// Tier identifies a subscription level.
type Tier string

const (
	TierFree     Tier = "free"
	TierBasic    Tier = "basic"
	TierPro      Tier = "pro"
	TierBusiness Tier = "business"
)

// Resource identifies one of the three independently metered daily counters.
type Resource string

const (
	// ResourceMessage meters plain text exchanges
	ResourceMessage Resource = "message"
	// ResourceImage meters attachment uploads (images, video, documents)
	ResourceImage Resource = "image"
	// ResourceSearch meters augmented-search queries
	ResourceSearch Resource = "search"
)

// Resources lists all metered resources in a stable order.
var Resources = []Resource{ResourceMessage, ResourceImage, ResourceSearch}

// TierPolicy defines base daily allowances and capability flags for a tier.
// Allowances are per seat; multiply by team size for the effective limit.
type TierPolicy struct {
	Name Tier

	DailyMessages int
	DailyImages   int
	DailySearches int

	// AttachmentsAllowed covers video/document classes beyond plain images
	AttachmentsAllowed bool

	// AugmentedSearchAllowed enables live augmentation on the standard path
	AugmentedSearchAllowed bool
}

// BaseLimit returns the per-seat daily allowance for a resource.
func (p TierPolicy) BaseLimit(resource Resource) int {
	switch resource {
	case ResourceMessage:
		return p.DailyMessages
	case ResourceImage:
		return p.DailyImages
	case ResourceSearch:
		return p.DailySearches
	default:
		return 0
	}
}

// QuotaRecord is the durable ledger entry for one user and one UTC calendar day.
type QuotaRecord struct {
	UserID   string
	Day      time.Time // start of the UTC calendar day
	Tier     Tier
	TeamSize int

	MessageCount int
	ImageCount   int
	SearchCount  int

	LastResetAt time.Time
	UpdatedAt   time.Time
}

// Count returns the current counter value for a resource.
func (r *QuotaRecord) Count(resource Resource) int {
	switch resource {
	case ResourceMessage:
		return r.MessageCount
	case ResourceImage:
		return r.ImageCount
	case ResourceSearch:
		return r.SearchCount
	default:
		return 0
	}
}

// SetCount sets the counter value for a resource.
func (r *QuotaRecord) SetCount(resource Resource, n int) {
	switch resource {
	case ResourceMessage:
		r.MessageCount = n
	case ResourceImage:
		r.ImageCount = n
	case ResourceSearch:
		r.SearchCount = n
	}
}

// RequestContext describes one inbound message. It is an ephemeral snapshot:
// identity fields come from the caller's profile provider, shape fields from
// the message itself.
type RequestContext struct {
	UserID   string
	Tier     Tier
	TeamSize int
	Role     string
	Locale   string

	TextLength    int
	HasAttachment bool

	// LexicalSignal is true when the message text matches the routing
	// lexicon (sourced/current information, pricing, download links).
	// Compute it with routing.Policy.DetectLexicalSignal.
	LexicalSignal bool

	// AugmentationRequested is true when the user explicitly asked for an
	// augmented-search exchange; it selects the search counter.
	AugmentationRequested bool

	// ForcedMode carries an active prompt-variant override (e.g. a
	// structured-lesson mode). Empty when no override is active.
	ForcedMode string
}

// ResourceFor maps a request to the counter it consumes. Attachments bill as
// images, explicit augmentation as searches, everything else as messages.
func ResourceFor(req RequestContext) Resource {
	switch {
	case req.HasAttachment:
		return ResourceImage
	case req.AugmentationRequested:
		return ResourceSearch
	default:
		return ResourceMessage
	}
}

// Usage reports the state of one counter for a user's current day.
type Usage struct {
	Resource  Resource
	Used      int
	Limit     int
	Remaining int
}

// Config holds admission controller configuration.
type Config struct {
	// Tiers maps tier names to their policies (default: DefaultTierPolicies)
	Tiers TierPolicyTable

	// DefaultTier is used when the request carries an unknown tier
	DefaultTier Tier

	// FailOpen admits authenticated requests when the ledger is unreachable,
	// queueing a best-effort reconciliation write. Set FailClosed to deny
	// instead. Denying on a storage blip is worse than bounded overshoot,
	// so fail-open is the default.
	FailClosed bool

	// Reconciler receives increments for fail-open admits (optional)
	Reconciler *Reconciler

	// Logger is used for structured logging (default: NoopLogger)
	Logger Logger

	// Metrics is used for tracking admission operations (default: NoopMetrics)
	Metrics Metrics

	// Now overrides the time source, for tests (default: time.Now)
	Now func() time.Time
}

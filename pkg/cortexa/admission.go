package cortexa

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Controller evaluates and reserves quota for inbound requests. It is the
// only component that mutates the ledger: exactly one increment per admitted
// request, zero on denial.
type Controller struct {
	ledger  Ledger
	config  Config
	logger  Logger
	metrics Metrics
	now     func() time.Time
}

// NewController creates a new admission controller.
func NewController(ledger Ledger, config Config) (*Controller, error) {
	if ledger == nil {
		return nil, ErrLedgerUnavailable
	}
	if config.Tiers == nil {
		config.Tiers = DefaultTierPolicies()
	}
	if err := config.Tiers.Validate(); err != nil {
		return nil, err
	}
	if config.DefaultTier == "" {
		config.DefaultTier = TierFree
	}
	if _, ok := config.Tiers[config.DefaultTier]; !ok {
		return nil, fmt.Errorf("%w: default tier %q not in table", ErrInvalidTier, config.DefaultTier)
	}
	if config.Logger == nil {
		config.Logger = &NoopLogger{}
	}
	if config.Metrics == nil {
		config.Metrics = &NoopMetrics{}
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return &Controller{
		ledger:  ledger,
		config:  config,
		logger:  config.Logger,
		metrics: config.Metrics,
		now:     config.Now,
	}, nil
}

// Result reports the outcome of an admission attempt.
type Result struct {
	// Admitted is true when one unit of quota was reserved
	Admitted bool

	// Resource is the counter the request was evaluated against
	Resource Resource

	// Remaining is the quota left after this attempt (0 on denial)
	Remaining int

	// FailOpen is true when the request was admitted without a confirmed
	// ledger write because the backing store was unreachable
	FailOpen bool
}

// Admit atomically evaluates and reserves one unit of quota for the request.
// On denial it returns a Result with Admitted=false together with a
// *QuotaExceededError naming the denied resource. When the ledger is
// unreachable it applies the configured fail-open policy for authenticated
// users, queueing a best-effort reconciliation write.
func (c *Controller) Admit(ctx context.Context, req RequestContext) (*Result, error) {
	if req.UserID == "" {
		return nil, ErrUnauthenticated
	}

	resource := ResourceFor(req)
	policy := c.policyFor(req.Tier)
	limit := EffectiveLimit(policy, resource, req.TeamSize)

	incReq := &IncrementRequest{
		UserID:   req.UserID,
		Day:      StartOfDayUTC(c.now()),
		Resource: resource,
		Limit:    limit,
		Tier:     policy.Name,
		TeamSize: req.TeamSize,
	}

	start := c.now()
	newCount, err := c.ledger.ConditionalIncrement(ctx, incReq)
	c.metrics.RecordLedgerOperation("conditional_increment", c.now().Sub(start), err)

	switch {
	case err == nil:
		c.metrics.RecordAdmission(resource, policy.Name, "admitted")
		return &Result{
			Admitted:  true,
			Resource:  resource,
			Remaining: limit - newCount,
		}, nil

	case errors.Is(err, ErrQuotaExceeded):
		c.metrics.RecordAdmission(resource, policy.Name, "denied")
		c.logger.Debug("admission denied",
			Field{"userId", req.UserID},
			Field{"resource", resource},
			Field{"limit", limit},
		)
		return &Result{Resource: resource}, &QuotaExceededError{Resource: resource}

	case isInfrastructureError(err):
		if c.config.FailClosed {
			c.metrics.RecordAdmission(resource, policy.Name, "error")
			return nil, fmt.Errorf("admit %s for %s: %w", resource, req.UserID, err)
		}
		c.metrics.RecordAdmission(resource, policy.Name, "fail_open")
		c.logger.Warn("ledger unavailable, admitting fail-open",
			Field{"userId", req.UserID},
			Field{"resource", resource},
			Field{"error", err.Error()},
		)
		if c.config.Reconciler != nil {
			if !c.config.Reconciler.Enqueue(incReq) {
				c.logger.Error("reconciliation queue full, increment lost",
					Field{"userId", req.UserID},
					Field{"resource", resource},
				)
			}
		}
		return &Result{
			Admitted: true,
			Resource: resource,
			FailOpen: true,
		}, nil

	default:
		c.metrics.RecordAdmission(resource, policy.Name, "error")
		return nil, fmt.Errorf("admit %s for %s: %w", resource, req.UserID, err)
	}
}

// Check evaluates the request against the current counters without mutating
// the ledger. It is advisory: the answer can be stale by the time the caller
// acts on it. The charge-on-success orchestrator mode uses it as a pre-flight
// gate before dispatching.
func (c *Controller) Check(ctx context.Context, req RequestContext) error {
	if req.UserID == "" {
		return ErrUnauthenticated
	}

	resource := ResourceFor(req)
	policy := c.policyFor(req.Tier)
	limit := EffectiveLimit(policy, resource, req.TeamSize)

	record, err := c.ledger.Read(ctx, req.UserID, StartOfDayUTC(c.now()))
	if errors.Is(err, ErrRecordNotFound) {
		if limit <= 0 {
			return &QuotaExceededError{Resource: resource}
		}
		return nil
	}
	if err != nil {
		if !c.config.FailClosed && isInfrastructureError(err) {
			return nil
		}
		return fmt.Errorf("check %s for %s: %w", resource, req.UserID, err)
	}

	if record.Count(resource) >= limit {
		return &QuotaExceededError{Resource: resource}
	}
	return nil
}

// Usage returns the current state of all three counters for a user. Missing
// records read as zero usage.
func (c *Controller) Usage(ctx context.Context, userID string, tier Tier, teamSize int) ([]Usage, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	policy := c.policyFor(tier)

	record, err := c.ledger.Read(ctx, userID, StartOfDayUTC(c.now()))
	if err != nil && !errors.Is(err, ErrRecordNotFound) {
		return nil, fmt.Errorf("usage for %s: %w", userID, err)
	}

	usages := make([]Usage, 0, len(Resources))
	for _, res := range Resources {
		limit := EffectiveLimit(policy, res, teamSize)
		used := 0
		if record != nil {
			used = record.Count(res)
		}
		remaining := limit - used
		if remaining < 0 {
			remaining = 0
		}
		usages = append(usages, Usage{
			Resource:  res,
			Used:      used,
			Limit:     limit,
			Remaining: remaining,
		})
	}
	return usages, nil
}

// policyFor resolves a tier, falling back to the default for unknown tiers.
func (c *Controller) policyFor(tier Tier) TierPolicy {
	if p, ok := c.config.Tiers[tier]; ok {
		return p
	}
	return c.config.Tiers[c.config.DefaultTier]
}

// isInfrastructureError distinguishes storage faults from business denials.
// Only the former trigger the fail-open policy.
func isInfrastructureError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrLedgerUnavailable) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}

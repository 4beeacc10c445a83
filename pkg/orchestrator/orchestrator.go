// Package orchestrator composes admission, routing and session affinity
// into the per-message pipeline. It is the only surface exposed to callers.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/equaltechbd/cortexa/pkg/cortexa"
	"github.com/equaltechbd/cortexa/pkg/routing"
	"github.com/equaltechbd/cortexa/pkg/session"
)

// ChargePolicy selects when the quota increment is applied.
type ChargePolicy int

const (
	// ChargeOnAdmission charges before dispatch. A failed backend call does
	// not refund the charge. Safer against abuse; the default.
	ChargeOnAdmission ChargePolicy = iota

	// ChargeOnSuccess runs an advisory check before dispatch and applies
	// the charge only after a successful reply. Concurrent requests can
	// overshoot the limit by the number of in-flight dispatches.
	ChargeOnSuccess
)

// Config holds orchestrator configuration.
type Config struct {
	// ChargePolicy selects the charge timing (default: ChargeOnAdmission)
	ChargePolicy ChargePolicy

	// DispatchTimeout bounds each backend call, 0 for no bound. After the
	// deadline the attempt reports a timeout without assuming whether the
	// remote side committed.
	DispatchTimeout time.Duration

	// Logger is used for structured logging (default: NoopLogger)
	Logger cortexa.Logger

	// Metrics is used for tracking pipeline operations (default: NoopMetrics)
	Metrics cortexa.Metrics
}

// Orchestrator runs the admit -> route -> bind session -> dispatch pipeline.
type Orchestrator struct {
	admission *cortexa.Controller
	routing   *routing.Policy
	sessions  *session.Registry
	backend   Backend
	config    Config
	logger    cortexa.Logger
	metrics   cortexa.Metrics
}

// New creates an orchestrator over the given components.
func New(admission *cortexa.Controller, policy *routing.Policy, backend Backend, config Config) (*Orchestrator, error) {
	if admission == nil {
		return nil, errors.New("orchestrator: admission controller is required")
	}
	if policy == nil {
		return nil, errors.New("orchestrator: routing policy is required")
	}
	if backend == nil {
		return nil, errors.New("orchestrator: backend is required")
	}
	if config.Logger == nil {
		config.Logger = &cortexa.NoopLogger{}
	}
	if config.Metrics == nil {
		config.Metrics = &cortexa.NoopMetrics{}
	}

	return &Orchestrator{
		admission: admission,
		routing:   policy,
		sessions:  session.NewRegistry(config.Logger, config.Metrics),
		backend:   backend,
		config:    config,
		logger:    config.Logger,
		metrics:   config.Metrics,
	}, nil
}

// Send runs one message through the pipeline. A quota denial returns a
// *cortexa.QuotaExceededError before any backend call; backend and session
// failures return a *BackendError with the quota charge already applied.
func (o *Orchestrator) Send(ctx context.Context, req cortexa.RequestContext, payload Payload) (*Reply, error) {
	o.normalize(&req, payload)

	charged := false
	if o.config.ChargePolicy == ChargeOnAdmission {
		if _, err := o.admission.Admit(ctx, req); err != nil {
			return nil, err
		}
		charged = true
	} else {
		if err := o.admission.Check(ctx, req); err != nil {
			return nil, err
		}
	}

	decision := o.routing.Decide(req)
	o.metrics.RecordRoutingDecision(decision.ProcessingTier.String(), decision.AugmentationEnabled)

	handle, err := o.sessions.GetOrCreate(ctx, req.UserID, decision.SessionKey, func(ctx context.Context) (session.Handle, error) {
		return o.backend.CreateSession(ctx, SessionParams{
			Locale:         req.Locale,
			Role:           req.Role,
			Tier:           req.Tier,
			ProcessingTier: decision.ProcessingTier,
			ForcedMode:     req.ForcedMode,
		})
	})
	if err != nil {
		return nil, &BackendError{Err: err}
	}
	sess, ok := handle.(Session)
	if !ok {
		return nil, &BackendError{Err: fmt.Errorf("bound handle is not a backend session")}
	}

	dispatchCtx := ctx
	if o.config.DispatchTimeout > 0 {
		var cancel context.CancelFunc
		dispatchCtx, cancel = context.WithTimeout(ctx, o.config.DispatchTimeout)
		defer cancel()
	}

	reply, err := sess.Send(dispatchCtx, payload, Capabilities{Augmentation: decision.AugmentationEnabled})
	if err != nil {
		// The charge stands: admission paid for the attempt, not the answer.
		return nil, &BackendError{
			Timeout: errors.Is(err, context.DeadlineExceeded),
			Err:     err,
		}
	}

	if !charged {
		if _, err := o.admission.Admit(ctx, req); err != nil {
			if errors.Is(err, cortexa.ErrQuotaExceeded) {
				// The limit filled up between check and reply. The answer
				// is already produced; accept the overshoot.
				o.logger.Warn("post-success charge exceeded limit",
					cortexa.Field{Key: "userId", Value: req.UserID},
				)
			} else {
				o.logger.Error("post-success charge failed",
					cortexa.Field{Key: "userId", Value: req.UserID},
					cortexa.Field{Key: "error", Value: err.Error()},
				)
			}
		}
	}

	return reply, nil
}

// ResetConversation explicitly drops the user's bound session handle,
// independent of any key change. The next Send creates a fresh backend
// conversation.
func (o *Orchestrator) ResetConversation(userID string) {
	o.sessions.Reset(userID)
}

// Usage exposes the user's current counters for client display.
func (o *Orchestrator) Usage(ctx context.Context, userID string, tier cortexa.Tier, teamSize int) ([]cortexa.Usage, error) {
	return o.admission.Usage(ctx, userID, tier, teamSize)
}

// normalize fills derivable request fields the caller left unset.
func (o *Orchestrator) normalize(req *cortexa.RequestContext, payload Payload) {
	if req.TextLength == 0 {
		req.TextLength = len(payload.Text)
	}
	if !req.HasAttachment && len(payload.Attachment) > 0 {
		req.HasAttachment = true
	}
	if !req.LexicalSignal {
		req.LexicalSignal = o.routing.DetectLexicalSignal(payload.Text)
	}
}

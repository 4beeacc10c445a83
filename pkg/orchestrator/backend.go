package orchestrator

import (
	"context"
	"fmt"

	"github.com/equaltechbd/cortexa/pkg/cortexa"
	"github.com/equaltechbd/cortexa/pkg/routing"
)

// Payload is the validated message content handed to this core. Attachment
// validation and compression happen upstream; an oversized or unsupported
// file is never seen here.
type Payload struct {
	Text           string
	Attachment     []byte
	AttachmentMIME string
}

// Citation references a web source backing an augmented reply.
type Citation struct {
	URI   string
	Title string
}

// Reply is a successful backend response.
type Reply struct {
	Text      string
	Citations []Citation
}

// Capabilities is the capability set attached to a dispatch.
type Capabilities struct {
	Augmentation bool
}

// SessionParams describes the conversation context a new backend session is
// created with.
type SessionParams struct {
	Locale         string
	Role           string
	Tier           cortexa.Tier
	ProcessingTier routing.ProcessingTier
	ForcedMode     string
}

// Session is a live backend conversation. It satisfies session.Handle so
// the affinity cache can own it.
type Session interface {
	// Send dispatches one message through this conversation.
	Send(ctx context.Context, payload Payload, caps Capabilities) (*Reply, error)

	// Close releases the backend-side conversation state.
	Close() error
}

// Backend is the inference service boundary.
type Backend interface {
	// CreateSession opens a new conversation with the given context.
	CreateSession(ctx context.Context, params SessionParams) (Session, error)
}

// BackendError reports a failed dispatch or session creation. It is
// retryable by the caller; any quota already charged stays charged, since
// the charge is for admission to attempt, not for a successful answer.
type BackendError struct {
	// Timeout is true when the attempt was cut off by the dispatch
	// deadline; whether the remote side committed is unknown.
	Timeout bool

	Err error
}

func (e *BackendError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("backend timeout: %v", e.Err)
	}
	return fmt.Sprintf("backend error: %v", e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

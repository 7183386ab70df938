// Package assistant is the outward face of the event-planning agent: the
// web layer (or the CLI) talks to this facade and never to the loop, the
// stores, or the providers directly.
package assistant

import (
	"context"
	"errors"

	"hearth/internal/agent"
	"hearth/internal/agent/ports"
	"hearth/internal/booking"
	"hearth/internal/draft"
	"hearth/internal/logging"
	"hearth/internal/observability"
	"hearth/internal/session"
	"hearth/internal/tools"
	"hearth/internal/tools/builtin"
)

// Reply is the outcome of one user message.
type Reply struct {
	ResponseText string            `json:"response_text"`
	DraftPreview string            `json:"draft_preview,omitempty"`
	Status       session.Status    `json:"status"`
	Draft        *draft.EventDraft `json:"draft,omitempty"`
}

// Assistant owns one fully wired agent stack.
type Assistant struct {
	engine   *agent.Engine
	sessions session.Store
	drafts   *draft.Manager
	logger   logging.Logger
}

// Options collects the collaborators the assistant is built from.
type Options struct {
	Client   ports.LLMClient
	Sessions session.Store
	Drafts   draft.Store
	Catalog  booking.Catalog
	Agent    agent.Config
	Metrics  *observability.Metrics
}

// New assembles the assistant: draft manager over the draft store, the
// built-in toolset over manager and catalog, and the loop over all of it.
func New(opts Options) (*Assistant, error) {
	if opts.Client == nil {
		return nil, errors.New("assistant requires an LLM client")
	}
	if opts.Sessions == nil {
		opts.Sessions = session.NewMemoryStore()
	}
	if opts.Drafts == nil {
		opts.Drafts = draft.NewMemoryStore()
	}
	if opts.Catalog == nil {
		opts.Catalog = booking.NewMemoryCatalog()
	}

	logger := logging.NewComponentLogger("assistant")
	manager := draft.NewManager(opts.Drafts, opts.Catalog, logger)
	manager.SetMetrics(opts.Metrics)

	registry := tools.NewRegistry(logger)
	if err := builtin.RegisterAll(registry, manager, opts.Catalog); err != nil {
		return nil, err
	}

	return &Assistant{
		engine:   agent.NewEngine(opts.Client, registry, opts.Sessions, manager, opts.Agent, opts.Metrics),
		sessions: opts.Sessions,
		drafts:   manager,
		logger:   logger,
	}, nil
}

// StartSession opens a new conversation for the given staff user.
func (a *Assistant) StartSession(ctx context.Context, userID string) (string, error) {
	sess, err := a.sessions.Create(ctx, userID)
	if err != nil {
		return "", err
	}
	a.logger.Info("Started session %s for user %s", sess.ID, userID)
	return sess.ID, nil
}

// HandleMessage runs the agent loop for one user message.
func (a *Assistant) HandleMessage(ctx context.Context, sessionID, text string) (*Reply, error) {
	result, err := a.engine.HandleMessage(ctx, sessionID, text)
	if err != nil {
		return nil, err
	}

	reply := &Reply{
		ResponseText: result.ResponseText,
		Status:       result.Status,
		Draft:        result.Draft,
	}
	if result.Draft != nil {
		reply.DraftPreview = result.Draft.Summary()
	}
	return reply, nil
}

// GetDraft returns the session's current draft, or nil when none exists.
func (a *Assistant) GetDraft(ctx context.Context, sessionID string) (*draft.EventDraft, error) {
	current, err := a.drafts.Current(ctx, sessionID)
	if errors.Is(err, draft.ErrNoDraft) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return current, nil
}

// MaterializeDraft publishes the session's draft as a real event. Callers
// get IncompleteDraftError with the specific missing fields when the draft
// is not ready.
func (a *Assistant) MaterializeDraft(ctx context.Context, sessionID string) (*draft.MaterializedEvent, error) {
	return a.drafts.Materialize(ctx, sessionID)
}

// Session exposes the conversation log, for transcripts and debugging.
func (a *Assistant) Session(ctx context.Context, sessionID string) (*session.Session, error) {
	return a.sessions.Get(ctx, sessionID)
}

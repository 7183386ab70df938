// Package agent drives the reasoning-acting loop: prompt the model, execute
// the tool calls it requests, feed observations back, and stop on a final
// answer or the iteration cap.
package agent

import (
	"context"
	"errors"
	"time"

	"hearth/internal/agent/ports"
	"hearth/internal/draft"
	hearthErrors "hearth/internal/errors"
	"hearth/internal/logging"
	"hearth/internal/observability"
	"hearth/internal/session"
)

// Config bounds one user message's worth of agent work.
type Config struct {
	// MaxIterations caps provider round-trips per user message.
	MaxIterations int
	// HistoryLimit bounds how many recent turns go into the prompt.
	HistoryLimit int
	// RequestTimeout is the hard per-provider-call timeout.
	RequestTimeout time.Duration

	Temperature float64
	MaxTokens   int
}

// DefaultConfig returns the production loop settings.
func DefaultConfig() Config {
	return Config{
		MaxIterations:  8,
		HistoryLimit:   40,
		RequestTimeout: 2 * time.Minute,
		Temperature:    0.3,
		MaxTokens:      1024,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxIterations <= 0 {
		c.MaxIterations = d.MaxIterations
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = d.HistoryLimit
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	return c
}

// Result is what one user message produced.
type Result struct {
	ResponseText string
	Status       session.Status
	Draft        *draft.EventDraft
	Iterations   int
}

// Engine runs the loop for one session at a time. Independent sessions may
// run concurrent engines; all shared state lives behind the stores and the
// registry, which are safe for concurrent use.
type Engine struct {
	client   ports.LLMClient
	registry ports.ToolRegistry
	sessions session.Store
	drafts   *draft.Manager
	config   Config
	metrics  *observability.Metrics
	clock    ports.Clock
	logger   logging.Logger
}

// NewEngine wires the loop's collaborators together.
func NewEngine(client ports.LLMClient, registry ports.ToolRegistry, sessions session.Store, drafts *draft.Manager, config Config, metrics *observability.Metrics) *Engine {
	return &Engine{
		client:   client,
		registry: registry,
		sessions: sessions,
		drafts:   drafts,
		config:   config.withDefaults(),
		metrics:  metrics,
		clock:    ports.RealClock{},
		logger:   logging.NewComponentLogger("agent"),
	}
}

// SetClock overrides the time source used for turn timestamps; tests use it
// to get deterministic transcripts.
func (e *Engine) SetClock(clock ports.Clock) {
	if clock != nil {
		e.clock = clock
	}
}

// HandleMessage appends the user turn and drives the loop until the model
// answers, the iteration cap is hit, or the provider fails.
//
// Provider failure is a conversational outcome, not an error: the session is
// failed, an apology turn is appended, and the Result carries it. Errors are
// reserved for contract violations such as unknown or terminal sessions.
func (e *Engine) HandleMessage(ctx context.Context, sessionID, text string) (*Result, error) {
	if err := e.sessions.AppendTurn(ctx, sessionID, session.Turn{
		Role:      session.RoleUser,
		Content:   text,
		Timestamp: e.clock.Now(),
	}); err != nil {
		return nil, err
	}

	// A waiting session resumes work on the next user message.
	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status == session.StatusAwaitingUser {
		if err := e.sessions.SetStatus(ctx, sessionID, session.StatusActive); err != nil {
			return nil, err
		}
	}

	tools := e.registry.List()

	for iteration := 1; iteration <= e.config.MaxIterations; iteration++ {
		req, err := e.buildRequest(ctx, sessionID, tools)
		if err != nil {
			return nil, err
		}

		resp, err := e.completeWithTimeout(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			e.metrics.RecordLoopIterations(iteration, "provider_failure")
			return e.failSession(ctx, sessionID, iteration, err)
		}

		// Tool calls take precedence over any final text in the same
		// response; observations must be incorporated before concluding.
		if len(resp.ToolCalls) > 0 {
			if err := e.executeToolCalls(ctx, sessionID, resp.ToolCalls); err != nil {
				return nil, err
			}
			continue
		}

		e.metrics.RecordLoopIterations(iteration, "answered")
		return e.finishTurn(ctx, sessionID, iteration, resp.Content)
	}

	e.logger.Warn("Session %s hit the iteration cap (%d) without a final answer", sessionID, e.config.MaxIterations)
	e.metrics.RecordLoopIterations(e.config.MaxIterations, "max_iterations")
	return e.finishTurn(ctx, sessionID, e.config.MaxIterations, degradedReply)
}

func (e *Engine) buildRequest(ctx context.Context, sessionID string, tools []ports.ToolDefinition) (ports.CompletionRequest, error) {
	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return ports.CompletionRequest{}, err
	}

	current, err := e.drafts.Current(ctx, sessionID)
	if err != nil && !errors.Is(err, draft.ErrNoDraft) {
		return ports.CompletionRequest{}, err
	}

	messages := []ports.Message{{
		Role:    ports.RoleSystem,
		Content: buildSystemPrompt(current),
	}}
	messages = append(messages, convertTurns(sess.Turns, e.config.HistoryLimit)...)

	return ports.CompletionRequest{
		Messages:    messages,
		Tools:       tools,
		Temperature: e.config.Temperature,
		MaxTokens:   e.config.MaxTokens,
		Metadata:    map[string]any{"session_id": sessionID},
	}, nil
}

func (e *Engine) completeWithTimeout(ctx context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.config.RequestTimeout)
	defer cancel()
	return e.client.Complete(callCtx, req)
}

// executeToolCalls runs the requested tools sequentially, in order,
// appending one turn per observation. Failed results are observations too;
// the model gets the error text and may self-correct next iteration.
func (e *Engine) executeToolCalls(ctx context.Context, sessionID string, calls []ports.ToolCall) error {
	for _, call := range calls {
		call.SessionID = sessionID

		// Record the model's request before executing, so the transcript
		// pairs every observation with the call that produced it.
		if err := e.sessions.AppendTurn(ctx, sessionID, session.Turn{
			Role:       session.RoleAgent,
			ToolName:   call.Name,
			ToolCallID: call.ID,
			Arguments:  call.Arguments,
			Timestamp:  e.clock.Now(),
		}); err != nil {
			return err
		}

		started := time.Now()
		result := e.registry.Execute(ctx, call)
		e.metrics.RecordToolExecution(call.Name, time.Since(started), result.Success)
		if !result.Success {
			e.logger.Debug("Tool %s failed for session %s: %s", call.Name, sessionID, result.Error)
		}

		if err := e.sessions.AppendTurn(ctx, sessionID, session.Turn{
			Role:       session.RoleTool,
			ToolName:   call.Name,
			ToolCallID: call.ID,
			Content:    result.ObservationJSON(),
			Timestamp:  e.clock.Now(),
		}); err != nil {
			return err
		}
	}
	return nil
}

// finishTurn appends the agent's reply and parks the session until the next
// user message.
func (e *Engine) finishTurn(ctx context.Context, sessionID string, iterations int, reply string) (*Result, error) {
	if err := e.sessions.AppendTurn(ctx, sessionID, session.Turn{
		Role:      session.RoleAgent,
		Content:   reply,
		Timestamp: e.clock.Now(),
	}); err != nil {
		return nil, err
	}
	if err := e.sessions.SetStatus(ctx, sessionID, session.StatusAwaitingUser); err != nil {
		return nil, err
	}

	return &Result{
		ResponseText: reply,
		Status:       session.StatusAwaitingUser,
		Draft:        e.currentDraft(ctx, sessionID),
		Iterations:   iterations,
	}, nil
}

// failSession converts a provider failure into an apology turn and a failed
// session. Tool merges completed earlier in the loop are kept; only the
// conversation stops.
func (e *Engine) failSession(ctx context.Context, sessionID string, iterations int, cause error) (*Result, error) {
	e.logger.Error("Provider failure ended session %s: %v", sessionID, cause)

	apology := hearthErrors.FormatForUser(cause)
	if apology == "" {
		apology = "Sorry, I ran into a problem talking to the language model and cannot continue right now. Please try again in a little while."
	}

	if err := e.sessions.AppendTurn(ctx, sessionID, session.Turn{
		Role:      session.RoleAgent,
		Content:   apology,
		Timestamp: e.clock.Now(),
	}); err != nil {
		return nil, err
	}
	if err := e.sessions.SetStatus(ctx, sessionID, session.StatusFailed); err != nil {
		return nil, err
	}

	return &Result{
		ResponseText: apology,
		Status:       session.StatusFailed,
		Draft:        e.currentDraft(ctx, sessionID),
		Iterations:   iterations,
	}, nil
}

func (e *Engine) currentDraft(ctx context.Context, sessionID string) *draft.EventDraft {
	current, err := e.drafts.Current(ctx, sessionID)
	if err != nil {
		return nil
	}
	return current
}

// convertTurns maps the most recent session turns onto provider messages.
// Agent turns that carry a tool call id become assistant tool-call messages
// so native providers see a well-formed call/result pairing; consecutive
// calls from one response are folded into a single assistant message.
func convertTurns(turns []session.Turn, limit int) []ports.Message {
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}

	var messages []ports.Message
	for _, turn := range turns {
		switch turn.Role {
		case session.RoleUser:
			messages = append(messages, ports.Message{
				Role:    ports.RoleUser,
				Content: turn.Content,
			})

		case session.RoleAgent:
			if turn.ToolCallID != "" {
				call := ports.ToolCall{
					ID:        turn.ToolCallID,
					Name:      turn.ToolName,
					Arguments: turn.Arguments,
				}
				if n := len(messages); n > 0 &&
					messages[n-1].Role == ports.RoleAssistant &&
					messages[n-1].Content == "" &&
					len(messages[n-1].ToolCalls) > 0 {
					messages[n-1].ToolCalls = append(messages[n-1].ToolCalls, call)
					continue
				}
				messages = append(messages, ports.Message{
					Role:      ports.RoleAssistant,
					ToolCalls: []ports.ToolCall{call},
				})
				continue
			}
			messages = append(messages, ports.Message{
				Role:    ports.RoleAssistant,
				Content: turn.Content,
			})

		case session.RoleTool:
			messages = append(messages, ports.Message{
				Role:       ports.RoleTool,
				Content:    turn.Content,
				ToolName:   turn.ToolName,
				ToolCallID: turn.ToolCallID,
			})

		default:
			// Unknown roles are dropped rather than confusing the provider.
			continue
		}
	}
	return messages
}

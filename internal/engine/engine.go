// Package engine drives one phone call: it serializes turns, routes the
// caller's words through the turn generator and the tool catalog, and keeps
// the durable session record consistent.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"voicebot-platform/internal/audit"
	"voicebot-platform/internal/config"
	"voicebot-platform/internal/llm"
	"voicebot-platform/internal/lock"
	"voicebot-platform/internal/reservation"
	"voicebot-platform/internal/schedule"
	"voicebot-platform/internal/session"
	"voicebot-platform/internal/telephony"
	"voicebot-platform/internal/tools"
	"voicebot-platform/pkg/logger"
)

// ErrBusy indicates a turn for this call is already in flight. The caller
// is asked to hold rather than queueing a second turn.
var ErrBusy = errors.New("engine: turn already in flight")

const (
	pendingConfirm = "confirm"
	pendingCancel  = "cancel"
	pendingModify  = "modify"

	// maxToolRounds bounds tool-call loops within a single turn.
	maxToolRounds = 3
)

// Reply is what the engine wants spoken to the caller.
type Reply struct {
	Text    string
	EndCall bool
}

// Engine is the call session orchestrator. One Engine serves all calls;
// per-call state lives in the session store.
type Engine struct {
	store    session.Store
	locker   lock.Locker
	registry *tools.Registry
	gen      llm.Generator
	auditSvc *audit.Service

	cfg            config.EngineConfig
	restaurantName string
	systemPrompt   string
	loc            *time.Location

	clock func() time.Time
	sleep func(time.Duration)
}

func New(
	store session.Store,
	locker lock.Locker,
	registry *tools.Registry,
	gen llm.Generator,
	auditSvc *audit.Service,
	policy *schedule.Policy,
	cfg config.Config,
) *Engine {
	return &Engine{
		store:          store,
		locker:         locker,
		registry:       registry,
		gen:            gen,
		auditSvc:       auditSvc,
		cfg:            cfg.Engine,
		restaurantName: cfg.Restaurant.Name,
		systemPrompt:   llm.SystemPrompt(cfg.Restaurant),
		loc:            policy.Location(),
		clock:          time.Now,
		sleep:          time.Sleep,
	}
}

// WithClock overrides the time source for tests.
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	e.clock = clock
	return e
}

// WithSleep overrides the retry backoff sleeper for tests.
func (e *Engine) WithSleep(sleep func(time.Duration)) *Engine {
	e.sleep = sleep
	return e
}

// HandleEvent processes one normalized call event and returns what to say.
func (e *Engine) HandleEvent(ctx context.Context, ev telephony.CallEvent) (Reply, error) {
	switch ev.Kind {
	case telephony.EventCallStarted:
		return e.handleStart(ctx, ev)
	case telephony.EventUtterance:
		return e.handleUtterance(ctx, ev)
	case telephony.EventCallEnded:
		return Reply{}, e.handleEnd(ctx, ev)
	default:
		return Reply{}, fmt.Errorf("engine: unknown event kind %q", ev.Kind)
	}
}

func (e *Engine) handleStart(ctx context.Context, ev telephony.CallEvent) (Reply, error) {
	token, err := e.locker.Acquire(ctx, ev.CallID, e.cfg.LockLease)
	if errors.Is(err, lock.ErrAlreadyLocked) {
		return Reply{}, ErrBusy
	}
	if err != nil {
		return Reply{}, err
	}
	defer e.release(ctx, ev.CallID, token)

	now := e.clock()
	s, err := e.store.Load(ctx, ev.CallID)
	isNew := errors.Is(err, session.ErrNotFound)
	if isNew {
		s = session.New(ev.CallID, ev.From, now)
	} else if err != nil {
		return Reply{}, err
	}
	if s.Status.IsTerminal() {
		return Reply{Text: replyCallOver, EndCall: true}, nil
	}
	loadedVersion := s.Version

	if err := s.Transition(session.StatusInProgress, now); err != nil {
		return Reply{}, err
	}
	text := greeting(e.restaurantName)
	s.CurrentStep = "greeting"
	s.AppendTurn(session.Turn{Role: session.RoleAssistant, Content: text, At: now.UTC()})

	if isNew {
		if err := e.auditSvc.RecordCallEvent(ctx, audit.ActionCallStarted, s.CallID, map[string]any{"from": ev.From}); err != nil {
			return Reply{}, err
		}
	}
	if err := e.store.Save(ctx, s, loadedVersion); err != nil {
		return Reply{}, err
	}
	return Reply{Text: text}, nil
}

func (e *Engine) handleUtterance(ctx context.Context, ev telephony.CallEvent) (Reply, error) {
	token, err := e.locker.Acquire(ctx, ev.CallID, e.cfg.LockLease)
	if errors.Is(err, lock.ErrAlreadyLocked) {
		return Reply{}, ErrBusy
	}
	if err != nil {
		return Reply{}, err
	}
	defer e.release(ctx, ev.CallID, token)

	now := e.clock()
	s, err := e.store.Load(ctx, ev.CallID)
	if errors.Is(err, session.ErrNotFound) {
		// Utterance before the answer webhook landed; start the session now.
		s = session.New(ev.CallID, ev.From, now)
		if auditErr := e.auditSvc.RecordCallEvent(ctx, audit.ActionCallStarted, s.CallID, map[string]any{"from": ev.From}); auditErr != nil {
			return Reply{}, auditErr
		}
	} else if err != nil {
		return Reply{}, err
	}
	if s.Status.IsTerminal() {
		return Reply{Text: replyCallOver, EndCall: true}, nil
	}
	loadedVersion := s.Version

	if s.Status == session.StatusRinging {
		if err := s.Transition(session.StatusInProgress, now); err != nil {
			return Reply{}, err
		}
	}

	// The step names the turn; a retried turn after a crash lands on the
	// same step and deduplicates its effectful tool calls.
	step := fmt.Sprintf("turn-%d", loadedVersion)
	s.CurrentStep = step
	call := tools.CallContext{CallID: s.CallID, Step: step, PhoneNumber: s.PhoneNumber}

	s.AppendTurn(session.Turn{Role: session.RoleCaller, Content: ev.Utterance, At: now.UTC()})
	if detected := classifyIntent(ev.Utterance); detected != session.IntentUnknown {
		if s.Intent == session.IntentUnknown || s.Intent == session.IntentGeneralInquiry {
			s.Intent = detected
		}
	}

	var reply Reply
	if s.Status == session.StatusAwaitingConfirmation {
		reply, err = e.handleConfirmation(ctx, s, call, ev.Utterance)
	} else {
		reply, err = e.converse(ctx, s, call)
	}
	if err != nil {
		return Reply{}, err
	}

	s.AppendTurn(session.Turn{Role: session.RoleAssistant, Content: reply.Text, At: e.clock().UTC()})
	if reply.EndCall && !s.Status.IsTerminal() {
		if err := s.Transition(session.StatusCompleted, e.clock()); err != nil {
			return Reply{}, err
		}
		if err := e.auditSvc.RecordCallEvent(ctx, audit.ActionCallCompleted, s.CallID, nil); err != nil {
			return Reply{}, err
		}
	}

	if err := e.store.Save(ctx, s, loadedVersion); err != nil {
		return Reply{}, err
	}
	return reply, nil
}

// handleEnd marks the terminal status when the provider reports hangup.
// It deliberately skips the turn lock: optimistic concurrency alone keeps
// it safe against an in-flight turn, retrying on conflict.
func (e *Engine) handleEnd(ctx context.Context, ev telephony.CallEvent) error {
	for attempt := 0; attempt < 3; attempt++ {
		s, err := e.store.Load(ctx, ev.CallID)
		if errors.Is(err, session.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if s.Status.IsTerminal() {
			return nil
		}
		loadedVersion := s.Version

		now := e.clock()
		target := session.StatusAbandoned
		action := audit.ActionCallAbandoned
		if s.GeneratorDone {
			target = session.StatusCompleted
			action = audit.ActionCallCompleted
		}
		if err := s.Transition(target, now); err != nil {
			return err
		}
		if err := e.auditSvc.RecordCallEvent(ctx, action, s.CallID, map[string]any{"reason": ev.EndedReason}); err != nil {
			return err
		}
		err = e.store.Save(ctx, s, loadedVersion)
		if errors.Is(err, session.ErrVersionConflict) {
			continue
		}
		return err
	}
	return session.ErrVersionConflict
}

// converse runs the generator/tool loop for one turn.
func (e *Engine) converse(ctx context.Context, s *session.CallSession, call tools.CallContext) (Reply, error) {
	msgs := e.buildMessages(s)

	for round := 0; round < maxToolRounds; round++ {
		out, err := e.generate(ctx, msgs)
		if err != nil {
			return e.noteFailure(ctx, s, "generation", err)
		}

		if out.ToolCall == nil {
			s.ErrorCount = 0
			if out.EndCall {
				s.GeneratorDone = true
			}
			return Reply{Text: out.Text, EndCall: out.EndCall}, nil
		}

		tc := out.ToolCall
		if tc.Name == "cancel_reservation" || tc.Name == "modify_reservation" {
			// Irreversible against an existing booking; held until the
			// caller confirms, nothing applied yet.
			var a struct {
				ReservationID string `json:"reservation_id"`
			}
			_ = json.Unmarshal(tc.Arguments, &a)
			s.PendingReservationID = a.ReservationID
			s.PendingAction = pendingCancel
			question := confirmCancelQuestion
			if tc.Name == "modify_reservation" {
				s.PendingAction = pendingModify
				s.PendingArguments = tc.Arguments
				question = confirmModifyQuestion
			}
			if err := s.Transition(session.StatusAwaitingConfirmation, e.clock()); err != nil {
				return Reply{}, err
			}
			s.ErrorCount = 0
			return Reply{Text: question}, nil
		}

		res, err := e.invoke(ctx, call, tc.Name, tc.Arguments)
		rec := &session.ToolCallRecord{
			Tool:       tc.Name,
			Arguments:  tc.Arguments,
			DedupToken: tools.DedupToken(call, tc.Name),
		}
		if err != nil {
			if !isDomainErr(err) {
				return e.noteFailure(ctx, s, "tool:"+tc.Name, err)
			}
			// Domain rejections go back to the generator so it can tell
			// the caller what to change.
			rec.Outcome = "error: " + err.Error()
			s.AppendTurn(session.Turn{Role: session.RoleTool, Content: rec.Outcome, ToolCall: rec, At: e.clock().UTC()})
			msgs = appendToolExchange(msgs, tc, "Error: "+err.Error())
			continue
		}

		rec.Outcome = "ok"
		s.AppendTurn(session.Turn{Role: session.RoleTool, Content: res.Message, ToolCall: rec, At: e.clock().UTC()})
		s.ErrorCount = 0

		if tc.Name == "create_reservation" {
			var created reservation.Reservation
			_ = json.Unmarshal(res.Data, &created)
			s.PendingReservationID = created.ID
			s.PendingAction = pendingConfirm
			if err := s.Transition(session.StatusAwaitingConfirmation, e.clock()); err != nil {
				return Reply{}, err
			}
			return Reply{Text: confirmBookingQuestion(res.Data, e.loc)}, nil
		}

		msgs = appendToolExchange(msgs, tc, res.Message)
	}
	return Reply{Text: replyRetry}, nil
}

// handleConfirmation resolves an awaiting_confirmation turn.
func (e *Engine) handleConfirmation(ctx context.Context, s *session.CallSession, call tools.CallContext, utterance string) (Reply, error) {
	ans := classifyConfirmation(utterance)
	if ans == answerAmbiguous {
		s.ConfirmAttempts++
		if s.ConfirmAttempts <= 2 {
			return Reply{Text: replyReconfirm}, nil
		}
		// Third ambiguous answer counts as a decline.
		ans = answerNo
	}

	pendingID := s.PendingReservationID
	action := s.PendingAction
	pendingArgs := s.PendingArguments
	if err := s.Transition(session.StatusInProgress, e.clock()); err != nil {
		return Reply{}, err
	}
	s.ClearPending()
	args := json.RawMessage(fmt.Sprintf(`{"reservation_id": %q}`, pendingID))

	if ans == answerYes {
		toolName := "confirm_reservation"
		switch action {
		case pendingCancel:
			toolName = "cancel_reservation"
		case pendingModify:
			// Replay exactly the change the caller agreed to.
			toolName = "modify_reservation"
			args = pendingArgs
		}
		res, err := e.invoke(ctx, call, toolName, args)
		rec := &session.ToolCallRecord{
			Tool:       toolName,
			Arguments:  args,
			DedupToken: tools.DedupToken(call, toolName),
		}
		if err != nil {
			if !isDomainErr(err) {
				return e.noteFailure(ctx, s, "tool:"+toolName, err)
			}
			rec.Outcome = "error: " + err.Error()
			s.AppendTurn(session.Turn{Role: session.RoleTool, Content: rec.Outcome, ToolCall: rec, At: e.clock().UTC()})
			return Reply{Text: "I'm sorry, I couldn't finish that booking change. Is there anything else I can help with?"}, nil
		}
		rec.Outcome = "ok"
		s.AppendTurn(session.Turn{Role: session.RoleTool, Content: res.Message, ToolCall: rec, At: e.clock().UTC()})
		s.ErrorCount = 0
		return Reply{Text: confirmedFollowUp(res.Message)}, nil
	}

	// Declined.
	if action == pendingConfirm {
		// Free the held capacity; the pending booking is dead.
		rec := &session.ToolCallRecord{
			Tool:       "cancel_reservation",
			Arguments:  args,
			DedupToken: tools.DedupToken(call, "cancel_reservation"),
		}
		res, err := e.invoke(ctx, call, "cancel_reservation", args)
		switch {
		case err == nil:
			rec.Outcome = "ok"
			s.AppendTurn(session.Turn{Role: session.RoleTool, Content: res.Message, ToolCall: rec, At: e.clock().UTC()})
		case isDomainErr(err):
			rec.Outcome = "error: " + err.Error()
			s.AppendTurn(session.Turn{Role: session.RoleTool, Content: rec.Outcome, ToolCall: rec, At: e.clock().UTC()})
		default:
			return e.noteFailure(ctx, s, "tool:cancel_reservation", err)
		}
		return Reply{Text: replyBookingDeclined}, nil
	}
	if action == pendingModify {
		return Reply{Text: replyModifyDeclined}, nil
	}
	return Reply{Text: replyCancelDeclined}, nil
}

// generate calls the turn generator with per-attempt timeout, retrying with
// backoff on failure.
func (e *Engine) generate(ctx context.Context, msgs []llm.Message) (llm.Output, error) {
	defs := e.registry.Definitions()
	var lastErr error
	for attempt := 0; attempt <= e.cfg.GenerationRetries; attempt++ {
		if attempt > 0 {
			e.sleep(e.cfg.GenerationBackoff)
		}
		genCtx, cancel := context.WithTimeout(ctx, e.cfg.GenerationTimeout)
		out, err := e.gen.Generate(genCtx, msgs, defs)
		cancel()
		if err == nil {
			return out, nil
		}
		lastErr = err
		logger.From(ctx).Warn("generation attempt failed", "attempt", attempt, "error", err.Error())
	}
	return llm.Output{}, lastErr
}

func (e *Engine) invoke(ctx context.Context, call tools.CallContext, name string, args json.RawMessage) (tools.Result, error) {
	toolCtx, cancel := context.WithTimeout(ctx, e.cfg.ToolTimeout)
	defer cancel()
	return e.registry.Invoke(toolCtx, call, name, args)
}

// noteFailure counts a consecutive engine failure and escalates to failed
// once the threshold is hit.
func (e *Engine) noteFailure(ctx context.Context, s *session.CallSession, stage string, cause error) (Reply, error) {
	s.ErrorCount++
	logger.From(ctx).Warn("turn failed", "call_id", s.CallID, "stage", stage, "error_count", s.ErrorCount, "error", cause.Error())
	if s.ErrorCount < e.cfg.MaxConsecutiveErrors {
		return Reply{Text: replyRetry}, nil
	}
	if err := s.Transition(session.StatusFailed, e.clock()); err != nil {
		return Reply{}, err
	}
	if err := e.auditSvc.RecordCallEvent(ctx, audit.ActionCallFailed, s.CallID, map[string]any{"stage": stage, "error": cause.Error()}); err != nil {
		return Reply{}, err
	}
	return Reply{Text: replyEscalate, EndCall: true}, nil
}

// buildMessages reconstructs the generator conversation from the session
// history. Tool turns expand into the call/result pair the API expects.
func (e *Engine) buildMessages(s *session.CallSession) []llm.Message {
	msgs := []llm.Message{{Role: "system", Content: e.systemPrompt}}
	for i, t := range s.Turns {
		switch t.Role {
		case session.RoleCaller:
			msgs = append(msgs, llm.Message{Role: "user", Content: t.Content})
		case session.RoleAssistant:
			msgs = append(msgs, llm.Message{Role: "assistant", Content: t.Content})
		case session.RoleTool:
			if t.ToolCall == nil {
				continue
			}
			id := fmt.Sprintf("tc-%d", i)
			msgs = append(msgs,
				llm.Message{Role: "assistant", ToolCall: &llm.ToolCall{
					ID:        id,
					Name:      t.ToolCall.Tool,
					Arguments: t.ToolCall.Arguments,
				}},
				llm.Message{Role: "tool", ToolCallID: id, Content: t.Content},
			)
		}
	}
	return msgs
}

func appendToolExchange(msgs []llm.Message, tc *llm.ToolCall, result string) []llm.Message {
	return append(msgs,
		llm.Message{Role: "assistant", ToolCall: tc},
		llm.Message{Role: "tool", ToolCallID: tc.ID, Content: result},
	)
}

func (e *Engine) release(ctx context.Context, callID, token string) {
	if err := e.locker.Release(ctx, callID, token); err != nil && !errors.Is(err, lock.ErrNotHeld) {
		logger.From(ctx).Warn("lock release failed", "call_id", callID, "error", err.Error())
	}
}

// isDomainErr separates business-rule rejections the caller can fix by
// rephrasing from engine faults. Unknown tools and schema-invalid arguments
// are generator bugs, not caller mistakes: they count toward error_count and
// are never fed back for a retry with the same arguments.
func isDomainErr(err error) bool {
	for _, target := range []error{
		reservation.ErrInvalidInput,
		reservation.ErrSlotUnavailable,
		reservation.ErrNotFound,
		reservation.ErrPhoneMismatch,
		reservation.ErrNotActive,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

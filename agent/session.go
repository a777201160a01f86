package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/tbxark/leadagent/transcript"
	"github.com/tbxark/leadagent/types"
)

// SlotSelectionPrefix is the user turn recorded for a direct slot choice,
// the same token the chat widget sends as a message.
const SlotSelectionPrefix = "SLOT_"

type Session struct {
	ID    string       `json:"session_id"`
	State *State       `json:"state"`
	Turns []types.Turn `json:"messages"`
}

type TurnResult struct {
	Message          string            `json:"message"`
	Action           types.Action      `json:"action"`
	Payload          Payload           `json:"payload"`
	Phase            types.Phase       `json:"phase"`
	SchedulingFailed bool              `json:"scheduling_failed,omitempty"`
	Lead             types.LeadProfile `json:"lead"`
	Turns            []types.Turn      `json:"turns"`
}

// Service is the turn boundary: it serializes a session, loads its state and
// transcript, runs the Flow and the Lifecycle, and persists the result.
type Service struct {
	flow      *Flow
	lifecycle *Lifecycle
	states    *StateStore
	history   HistoryStore
	locker    Locker
	greeting  string
	now       func() time.Time
	logger    *slog.Logger
}

type ServiceOption func(*Service)

func WithStateStore(s *StateStore) ServiceOption {
	return func(svc *Service) {
		svc.states = s
	}
}

func WithHistoryStore(h HistoryStore) ServiceOption {
	return func(svc *Service) {
		svc.history = h
	}
}

func WithLocker(l Locker) ServiceOption {
	return func(svc *Service) {
		svc.locker = l
	}
}

func WithGreeting(greeting string) ServiceOption {
	return func(svc *Service) {
		svc.greeting = greeting
	}
}

func WithServiceClock(now func() time.Time) ServiceOption {
	return func(svc *Service) {
		svc.now = now
	}
}

func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(svc *Service) {
		svc.logger = logger
	}
}

// NewService defaults to in-memory stores and locks.
func NewService(flow *Flow, lifecycle *Lifecycle, opts ...ServiceOption) *Service {
	s := &Service{
		flow:      flow,
		lifecycle: lifecycle,
		states:    NewMemoryStateStore(0),
		history:   NewMemoryHistory(),
		locker:    NewMemoryLocker(),
		greeting:  transcript.Greeting(""),
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// InitSession creates the session with its greeting if it does not exist yet.
func (s *Service) InitSession(ctx context.Context, sessionID string) (*Session, error) {
	ctx, unlock, err := s.enter(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	state, ok, err := s.states.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	if !ok {
		// A transcript can outlive its expired state; start clean.
		if err := s.history.Clear(ctx); err != nil {
			return nil, fmt.Errorf("clear history: %w", err)
		}
		state = NewState(s.now())
		if err := s.states.Save(ctx, state); err != nil {
			return nil, fmt.Errorf("save state: %w", err)
		}
		s.logger.Info("Session created", "session_id", sessionID)
	}
	turns, err := s.history.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	if len(turns) == 0 && s.greeting != "" {
		turns, err = s.history.Append(ctx, types.Turn{Role: types.RoleAssistant, Content: s.greeting})
		if err != nil {
			return nil, fmt.Errorf("append greeting: %w", err)
		}
	}
	return &Session{ID: sessionID, State: state, Turns: turns}, nil
}

// ResetSession drops the state and transcript of a session. The next
// InitSession starts it over from the greeting.
func (s *Service) ResetSession(ctx context.Context, sessionID string) error {
	ctx, unlock, err := s.enter(ctx, sessionID)
	if err != nil {
		return err
	}
	defer unlock()

	if _, ok, err := s.states.Load(ctx); err != nil {
		return fmt.Errorf("load state: %w", err)
	} else if !ok {
		return ErrSessionNotFound
	}
	if err := s.states.Delete(ctx); err != nil {
		return fmt.Errorf("delete state: %w", err)
	}
	if err := s.history.Clear(ctx); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	s.logger.Info("Session reset", "session_id", sessionID)
	return nil
}

// ProcessTurn answers one user message. On error nothing is persisted and the
// same message can be retried.
func (s *Service) ProcessTurn(ctx context.Context, sessionID, text string) (*TurnResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}
	ctx, unlock, err := s.enter(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	state, err := s.loadOpen(ctx)
	if err != nil {
		return nil, err
	}
	turns, err := s.history.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	resp, err := s.flow.Invoke(ctx, &Request{State: state.Clone(), History: turns, UserInput: text})
	if err != nil {
		s.logger.Error("Turn failed", "session_id", sessionID, "error", err)
		return nil, err
	}
	return s.commit(ctx, state, resp, text)
}

// SelectSlot books slot index of the offer offerID without going through the
// chat model. An empty offerID means the currently open offer.
func (s *Service) SelectSlot(ctx context.Context, sessionID, offerID string, index int) (*TurnResult, error) {
	ctx, unlock, err := s.enter(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	state, err := s.loadOpen(ctx)
	if err != nil {
		return nil, err
	}
	if offerID == "" && state.Offer != nil {
		offerID = state.Offer.ID
	}
	resp := &Response{
		Action:  types.ActionScheduleMeeting,
		Payload: Payload{OfferID: offerID, SlotIndex: index},
	}
	return s.commit(ctx, state, resp, SlotSelectionPrefix+strconv.Itoa(index))
}

func (s *Service) commit(ctx context.Context, state *State, resp *Response, userText string) (*TurnResult, error) {
	next := state.Clone()
	outcome, err := s.lifecycle.Apply(ctx, next, resp)
	if err != nil {
		s.logger.Error("Applying action failed", "action", resp.Action, "error", err)
		return nil, err
	}
	if outcome.CRMError != nil {
		s.logger.Warn("Continuing without CRM update", "action", resp.Action, "error", outcome.CRMError)
	}

	message := replyMessage(resp, outcome)
	pending := []types.Turn{
		{Role: types.RoleUser, Content: userText},
		{Role: types.RoleAssistant, Content: message},
	}
	if resp.Action == types.ActionOfferSlots {
		if table := types.FormatSlotOffer(resp.Payload.Slots); table != "" {
			pending = append(pending, types.Turn{Role: types.RoleAssistant, Content: table})
		}
	}

	// The meeting and CRM calls above have run; persist even if ctx is done.
	persistCtx := context.WithoutCancel(ctx)
	appended, err := s.history.Append(persistCtx, pending...)
	if err != nil {
		return nil, fmt.Errorf("append turns: %w", err)
	}
	if err := s.states.Save(persistCtx, next); err != nil {
		return nil, fmt.Errorf("save state: %w", err)
	}

	s.logger.Info("Turn processed", "action", resp.Action, "phase", next.Phase, "scheduling_failed", outcome.SchedulingFailed)
	return &TurnResult{
		Message:          message,
		Action:           resp.Action,
		Payload:          resp.Payload,
		Phase:            next.Phase,
		SchedulingFailed: outcome.SchedulingFailed,
		Lead:             next.Lead,
		Turns:            appended,
	}, nil
}

func replyMessage(resp *Response, outcome Outcome) string {
	if outcome.SchedulingFailed {
		return SchedulingFailedMessage
	}
	message := resp.Message
	if outcome.Meeting != nil && outcome.Slot != nil {
		confirmation := FormatMeetingConfirmation(*outcome.Slot, *outcome.Meeting)
		if message == "" {
			return confirmation
		}
		return message + "\n\n" + confirmation
	}
	return message
}

// FormatMeetingConfirmation is appended to the reply once a meeting is booked.
func FormatMeetingConfirmation(slot types.TimeSlot, meeting types.MeetingResult) string {
	label := slot.Label
	if label == "" {
		label = slot.Start.Format("02/01/2006 15:04")
	}
	return fmt.Sprintf("Reunião agendada para %s. Link: %s", label, meeting.MeetingLink)
}

// History returns the transcript of an existing session.
func (s *Service) History(ctx context.Context, sessionID string) ([]types.Turn, error) {
	ctx = WithSessionID(ctx, sessionID)
	if _, ok, err := s.states.Load(ctx); err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	} else if !ok {
		return nil, ErrSessionNotFound
	}
	return s.history.Load(ctx)
}

// Lead returns the session state including the lead profile.
func (s *Service) Lead(ctx context.Context, sessionID string) (*State, error) {
	state, ok, err := s.states.Load(WithSessionID(ctx, sessionID))
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	if !ok {
		return nil, ErrSessionNotFound
	}
	return state, nil
}

func (s *Service) enter(ctx context.Context, sessionID string) (context.Context, func(), error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, nil, errors.New("session id is required")
	}
	unlock, err := s.locker.Lock(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	return WithSessionID(ctx, sessionID), unlock, nil
}

func (s *Service) loadOpen(ctx context.Context) (*State, error) {
	state, ok, err := s.states.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	if !ok {
		return nil, ErrSessionNotFound
	}
	if state.Phase.Terminal() {
		return nil, ErrConversationClosed
	}
	return state, nil
}

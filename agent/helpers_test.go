package agent

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tbxark/leadagent/crm"
	"github.com/tbxark/leadagent/llmtest"
	"github.com/tbxark/leadagent/scheduling"
	"github.com/tbxark/leadagent/types"
)

var testNow = time.Date(2025, 11, 3, 10, 30, 0, 0, time.UTC)

type fakeScheduler struct {
	mu       sync.Mutex
	slots    []types.TimeSlot
	slotErr  error
	meetErr  error
	requests []scheduling.MeetingRequest
	booked   map[string]*types.MeetingResult
	// onMeeting runs after every successful booking.
	onMeeting func()
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{slots: scheduling.ComputeSlots(testNow, 7, nil, time.UTC, 3)}
}

func (f *fakeScheduler) AvailableSlots(ctx context.Context, daysAhead int) ([]types.TimeSlot, error) {
	if f.slotErr != nil {
		return nil, f.slotErr
	}
	return f.slots, nil
}

func (f *fakeScheduler) CreateMeeting(ctx context.Context, req scheduling.MeetingRequest) (*types.MeetingResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.meetErr != nil {
		return nil, f.meetErr
	}
	if res, ok := f.booked[req.Key]; ok && req.Key != "" {
		return res, nil
	}
	f.requests = append(f.requests, req)
	res := &types.MeetingResult{
		MeetingLink:     fmt.Sprintf("https://meet.google.com/test-%d", len(f.requests)),
		MeetingDatetime: req.Start,
	}
	if f.booked == nil {
		f.booked = map[string]*types.MeetingResult{}
	}
	f.booked[req.Key] = res
	if f.onMeeting != nil {
		f.onMeeting()
	}
	return res, nil
}

// flakyHistory fails the next fails appends and, like a network store,
// refuses to write once ctx is done.
type flakyHistory struct {
	HistoryStore
	mu    sync.Mutex
	fails int
}

func (h *flakyHistory) Append(ctx context.Context, turns ...types.Turn) ([]types.Turn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.Lock()
	if h.fails > 0 {
		h.fails--
		h.mu.Unlock()
		return nil, fmt.Errorf("history unavailable")
	}
	h.mu.Unlock()
	return h.HistoryStore.Append(ctx, turns...)
}

type flakyCRM struct {
	*crm.Memory
	mu    sync.Mutex
	fails int
}

func (f *flakyCRM) FindByEmail(ctx context.Context, email string) (*crm.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fails > 0 {
		f.fails--
		return nil, fmt.Errorf("crm unavailable")
	}
	return f.Memory.FindByEmail(ctx, email)
}

type fixture struct {
	model     *llmtest.Model
	scheduler *fakeScheduler
	crm       *crm.Memory
	service   *Service
}

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("offer-%d", n)
	}
}

func newFixture(t *testing.T, client crm.Client, opts ...ServiceOption) *fixture {
	t.Helper()
	m := llmtest.NewModel()
	sched := newFakeScheduler()
	mem := crm.NewMemory()
	if client == nil {
		client = mem
	}
	flow, err := NewFlow(m, sched, WithOfferIDGenerator(sequentialIDs()))
	require.NoError(t, err)
	clock := func() time.Time { return testNow }
	lifecycle := NewLifecycle(sched, crm.NewRegistrar(client), WithClock(clock))
	svc := NewService(flow, lifecycle, append([]ServiceOption{WithServiceClock(clock)}, opts...)...)
	return &fixture{model: m, scheduler: sched, crm: mem, service: svc}
}

func (f *fixture) init(t *testing.T, id string) {
	t.Helper()
	_, err := f.service.InitSession(context.Background(), id)
	require.NoError(t, err)
}

func (f *fixture) turn(t *testing.T, id, user, reply string) *TurnResult {
	t.Helper()
	f.model.Reply(reply)
	res, err := f.service.ProcessTurn(context.Background(), id, user)
	require.NoError(t, err)
	return res
}

package crm

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Memory is an in-process CRM used when no Pipefy token is configured.
type Memory struct {
	mu      sync.RWMutex
	records map[string]Fields
	byEmail map[string]string
}

func NewMemory() *Memory {
	return &Memory{
		records: make(map[string]Fields),
		byEmail: make(map[string]string),
	}
}

func (m *Memory) FindByEmail(ctx context.Context, email string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, ErrNotFound
	}
	f := m.records[id]
	return &Record{ID: id, Title: title(f)}, nil
}

func (m *Memory) Create(ctx context.Context, fields Fields) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.NewString()
	m.records[id] = fields
	if fields.Email != "" {
		m.byEmail[strings.ToLower(fields.Email)] = id
	}
	return id, nil
}

func (m *Memory) Update(ctx context.Context, id string, fields Fields) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.records[id]
	if !ok {
		return ErrNotFound
	}
	m.records[id] = overlay(cur, fields)
	return nil
}

// Get returns a copy of the stored record.
func (m *Memory) Get(id string) (Fields, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.records[id]
	return f, ok
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func overlay(cur, upd Fields) Fields {
	if upd.Name != "" {
		cur.Name = upd.Name
	}
	if upd.Email != "" {
		cur.Email = upd.Email
	}
	if upd.Company != "" {
		cur.Company = upd.Company
	}
	if upd.Need != "" {
		cur.Need = upd.Need
	}
	if upd.Deadline != "" {
		cur.Deadline = upd.Deadline
	}
	if upd.InterestConfirmed != nil {
		v := *upd.InterestConfirmed
		cur.InterestConfirmed = &v
	}
	if upd.MeetingLink != "" {
		cur.MeetingLink = upd.MeetingLink
	}
	if upd.MeetingDatetime != nil {
		v := *upd.MeetingDatetime
		cur.MeetingDatetime = &v
	}
	return cur
}

func title(f Fields) string {
	return f.Name + " - " + f.Email
}

var _ Client = (*Memory)(nil)

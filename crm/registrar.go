package crm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/tbxark/leadagent/types"
)

// Registrar does find-or-create by e-mail so retries resolve to the same record.
type Registrar struct {
	Client Client
	Logger *slog.Logger

	group singleflight.Group
}

func NewRegistrar(client Client) *Registrar {
	return &Registrar{Client: client}
}

// Register returns the id of the record for lead.Email, creating it if needed.
// An existing record is updated with the lead's current qualification fields.
func (r *Registrar) Register(ctx context.Context, lead types.LeadProfile) (string, error) {
	email := strings.TrimSpace(lead.Email)
	if email == "" {
		return "", errors.New("crm registration requires an email")
	}
	key := strings.ToLower(email)
	id, err, shared := r.group.Do(key, func() (any, error) {
		return r.findOrCreate(ctx, lead)
	})
	if err != nil {
		return "", err
	}
	r.logger().Debug("Lead registered", "record_id", id, "shared", shared)
	return id.(string), nil
}

func (r *Registrar) findOrCreate(ctx context.Context, lead types.LeadProfile) (string, error) {
	existing, err := r.Client.FindByEmail(ctx, lead.Email)
	switch {
	case err == nil:
		update := FieldsFromLead(lead)
		update.Name, update.Email, update.MeetingLink, update.MeetingDatetime = "", "", "", nil
		if err := r.Client.Update(ctx, existing.ID, update); err != nil {
			return "", fmt.Errorf("update crm record %s: %w", existing.ID, err)
		}
		return existing.ID, nil
	case errors.Is(err, ErrNotFound):
		fields := FieldsFromLead(lead)
		if fields.Name == "" {
			fields.Name = lead.DisplayName()
		}
		id, err := r.Client.Create(ctx, fields)
		if err != nil {
			return "", fmt.Errorf("create crm record: %w", err)
		}
		r.logger().Info("CRM record created", "record_id", id)
		return id, nil
	default:
		return "", fmt.Errorf("find crm record: %w", err)
	}
}

// RecordMeeting pushes the booked meeting onto an existing record.
func (r *Registrar) RecordMeeting(ctx context.Context, id string, lead types.LeadProfile) error {
	interested := true
	err := r.Client.Update(ctx, id, Fields{
		InterestConfirmed: &interested,
		MeetingLink:       lead.MeetingLink,
		MeetingDatetime:   lead.MeetingDatetime,
	})
	if err != nil {
		return fmt.Errorf("update crm record %s with meeting: %w", id, err)
	}
	return nil
}

func (r *Registrar) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

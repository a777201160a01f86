package crm

import (
	"context"
	"errors"
	"time"

	"github.com/tbxark/leadagent/types"
)

var ErrNotFound = errors.New("crm record not found")

type Record struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Fields is a partial CRM record. Empty strings and nil pointers are not sent.
type Fields struct {
	Name              string
	Email             string
	Company           string
	Need              string
	Deadline          string
	InterestConfirmed *bool
	MeetingLink       string
	MeetingDatetime   *time.Time
}

// Client is the CRM collaborator. FindByEmail returns ErrNotFound when no record matches.
type Client interface {
	FindByEmail(ctx context.Context, email string) (*Record, error)
	Create(ctx context.Context, fields Fields) (string, error)
	Update(ctx context.Context, id string, fields Fields) error
}

func FieldsFromLead(lead types.LeadProfile) Fields {
	interested := lead.InterestConfirmed
	return Fields{
		Name:              lead.Name,
		Email:             lead.Email,
		Company:           lead.Company,
		Need:              lead.Need,
		Deadline:          lead.Deadline,
		InterestConfirmed: &interested,
		MeetingLink:       lead.MeetingLink,
		MeetingDatetime:   lead.MeetingDatetime,
	}
}

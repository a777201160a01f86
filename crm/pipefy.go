package crm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
)

const DefaultPipefyURL = "https://api.pipefy.com/graphql"

// Pipefy card field ids.
const (
	FieldEmail             = "email"
	FieldName              = "nome"
	FieldCompany           = "empresa"
	FieldNeed              = "necessidade"
	FieldDeadline          = "prazo"
	FieldInterestConfirmed = "interesse_confirmado"
	FieldMeetingLink       = "meeting_link"
	FieldMeetingDatetime   = "meeting_datetime"
)

const searchCardsQuery = `query SearchCards($pipeId: ID!, $search: String!) {
  cards(pipe_id: $pipeId, first: 1, search: {title: $search}) {
    edges { node { id title } }
  }
}`

const createCardMutation = `mutation CreateCard($pipeId: ID!, $title: String!, $fields: [FieldValueInput]) {
  createCard(input: {pipe_id: $pipeId, title: $title, fields_attributes: $fields}) {
    card { id title }
  }
}`

const updateCardMutation = `mutation UpdateCard($cardId: ID!, $fields: [FieldValueInput]) {
  updateCard(input: {id: $cardId, fields_attributes: $fields}) {
    card { id }
  }
}`

var ErrPipefyNotConfigured = errors.New("pipefy api token and pipe id are required")

type PipefyConfig struct {
	APIToken string
	PipeID   string
	URL      string
	Timeout  time.Duration
}

// Pipefy stores leads as cards in a pipe through the GraphQL API.
// Only the card search is retried; mutations are sent exactly once.
type Pipefy struct {
	client    *resty.Client
	mutations *resty.Client
	pipeID    string
	logger    *slog.Logger
}

func NewPipefy(cfg PipefyConfig, logger *slog.Logger) (*Pipefy, error) {
	if cfg.APIToken == "" || cfg.PipeID == "" {
		return nil, ErrPipefyNotConfigured
	}
	url := cfg.URL
	if url == "" {
		url = DefaultPipefyURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	client := newPipefyClient(url, cfg.APIToken, timeout).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r != nil && (r.StatusCode() == 429 || r.StatusCode() >= 500)
		})
	return &Pipefy{
		client:    client,
		mutations: newPipefyClient(url, cfg.APIToken, timeout),
		pipeID:    cfg.PipeID,
		logger:    logger,
	}, nil
}

func newPipefyClient(url, token string, timeout time.Duration) *resty.Client {
	client := resty.New().
		SetBaseURL(url).
		SetTimeout(timeout).
		SetAuthToken(token).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	client.JSONMarshal = sonic.Marshal
	client.JSONUnmarshal = sonic.Unmarshal
	return client
}

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type gqlError struct {
	Message string `json:"message"`
}

type gqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []gqlError      `json:"errors"`
}

type fieldValue struct {
	FieldID    string `json:"field_id"`
	FieldValue string `json:"field_value"`
}

func (p *Pipefy) do(ctx context.Context, client *resty.Client, op, query string, vars map[string]any, out any) error {
	var res gqlResponse
	resp, err := client.R().
		SetContext(ctx).
		SetBody(gqlRequest{Query: query, Variables: vars}).
		SetResult(&res).
		Post("")
	if err != nil {
		return fmt.Errorf("pipefy %s: %w", op, err)
	}
	if resp.IsError() {
		return fmt.Errorf("pipefy %s: status %d", op, resp.StatusCode())
	}
	if len(res.Errors) > 0 {
		msgs := make([]string, 0, len(res.Errors))
		for _, e := range res.Errors {
			msgs = append(msgs, e.Message)
		}
		return fmt.Errorf("pipefy %s: graphql: %s", op, strings.Join(msgs, "; "))
	}
	if out == nil || len(res.Data) == 0 {
		return nil
	}
	if err := sonic.Unmarshal(res.Data, out); err != nil {
		return fmt.Errorf("pipefy %s: decode data: %w", op, err)
	}
	return nil
}

func (p *Pipefy) FindByEmail(ctx context.Context, email string) (*Record, error) {
	var data struct {
		Cards struct {
			Edges []struct {
				Node Record `json:"node"`
			} `json:"edges"`
		} `json:"cards"`
	}
	err := p.do(ctx, p.client, "search cards", searchCardsQuery, map[string]any{
		"pipeId": p.pipeID,
		"search": email,
	}, &data)
	if err != nil {
		return nil, err
	}
	if len(data.Cards.Edges) == 0 {
		return nil, ErrNotFound
	}
	node := data.Cards.Edges[0].Node
	return &node, nil
}

func (p *Pipefy) Create(ctx context.Context, fields Fields) (string, error) {
	var data struct {
		CreateCard struct {
			Card Record `json:"card"`
		} `json:"createCard"`
	}
	err := p.do(ctx, p.mutations, "create card", createCardMutation, map[string]any{
		"pipeId": p.pipeID,
		"title":  title(fields),
		"fields": fieldValues(fields),
	}, &data)
	if err != nil {
		return "", err
	}
	id := data.CreateCard.Card.ID
	if id == "" {
		return "", errors.New("pipefy create card: empty card id")
	}
	p.logger.Debug("Pipefy card created", "card_id", id)
	return id, nil
}

func (p *Pipefy) Update(ctx context.Context, id string, fields Fields) error {
	values := fieldValues(fields)
	if len(values) == 0 {
		return nil
	}
	return p.do(ctx, p.mutations, "update card", updateCardMutation, map[string]any{
		"cardId": id,
		"fields": values,
	}, nil)
}

func fieldValues(f Fields) []fieldValue {
	var out []fieldValue
	add := func(id, value string) {
		if value != "" {
			out = append(out, fieldValue{FieldID: id, FieldValue: value})
		}
	}
	add(FieldEmail, f.Email)
	add(FieldName, f.Name)
	add(FieldCompany, f.Company)
	add(FieldNeed, f.Need)
	add(FieldDeadline, f.Deadline)
	if f.InterestConfirmed != nil {
		add(FieldInterestConfirmed, strconv.FormatBool(*f.InterestConfirmed))
	}
	add(FieldMeetingLink, f.MeetingLink)
	if f.MeetingDatetime != nil {
		add(FieldMeetingDatetime, f.MeetingDatetime.Format(time.RFC3339))
	}
	return out
}

var _ Client = (*Pipefy)(nil)

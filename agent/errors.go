package agent

import "errors"

var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrConversationClosed = errors.New("conversation already closed")
	ErrSlotUnavailable    = errors.New("selected slot is not available")
	ErrStaleOffer         = errors.New("slot offer is no longer current")
	ErrSessionBusy        = errors.New("session is busy")
	ErrBackend            = errors.New("text generation backend failed")
	ErrEmptyMessage       = errors.New("message is empty")
)

const (
	ApologyMessage          = "Desculpe, tive um problema para processar sua mensagem. Pode tentar novamente?"
	SchedulingFailedMessage = "Desculpe, não consegui agendar nesse horário. Pode escolher um dos horários disponíveis?"
)

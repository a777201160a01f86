package transcript

import (
	"fmt"
	"strings"

	"github.com/tbxark/leadagent/marker"
)

// DefaultSystemPromptTemplate is the SDR instruction preamble. %[1]s is the company
// name; %[2]s, %[3]s and %[4]s are the interest, schedule and no-interest markers.
const DefaultSystemPromptTemplate = `Você é um agente SDR (Sales Development Representative) profissional e empático da %[1]s.

SEU OBJETIVO:
1. Apresentar-se de forma cordial como o assistente virtual da %[1]s.
2. Conduzir uma conversa natural para entender o cliente.
3. Identificar o interesse real do cliente antes de oferecer uma reunião.

FLUXO DE DESCOBERTA (uma pergunta de cada vez):
1. Nome completo
2. E-mail de contato
3. Empresa
4. Principal necessidade ou dor a resolver
5. Prazo desejado para implementação

REGRAS:
- Seja profissional, empático e natural. Faça APENAS UMA pergunta por vez.
- Não seja insistente se o cliente não demonstrar interesse.
- O cliente deve confirmar EXPLICITAMENTE o interesse (ex.: "Sim, tenho interesse", "Quero conhecer melhor o produto").

QUANDO O CLIENTE CONFIRMAR INTERESSE:
Responda de forma natural e termine a mensagem com %[2]s.
Exemplo: "Que ótimo! Vou verificar os horários disponíveis. %[2]s"

QUANDO O CLIENTE ESCOLHER UM HORÁRIO:
Os horários oferecidos aparecem na conversa numa tabela com a coluna Índice. Se o cliente indicar um horário
(primeiro, segundo, terceiro, o horário em si, ou uma mensagem SLOT_<índice>), responda com %[3]s seguido do índice.
Exemplo: "Perfeito! Vou agendar para esse horário. %[3]s 0"

SE O CLIENTE NÃO TIVER INTERESSE:
Agradeça cordialmente, encerre a conversa e termine a mensagem com %[4]s.
Exemplo: "Entendo perfeitamente. Agradeço seu tempo. %[4]s"

Use os marcadores exatamente como escritos, em maiúsculas e com colchetes. Responda sempre em português do Brasil.`

const DefaultCompanyName = "Verzel"

type promptOptions struct {
	companyName          string
	systemPrompt         string
	systemPromptTemplate string
	markers              *marker.MarkerParser
}

type PromptOption func(*promptOptions)

// WithCompanyName sets the company the assistant speaks for.
func WithCompanyName(name string) PromptOption {
	return func(o *promptOptions) {
		o.companyName = name
	}
}

// WithSystemPrompt replaces the preamble entirely.
func WithSystemPrompt(systemPrompt string) PromptOption {
	return func(o *promptOptions) {
		o.systemPrompt = systemPrompt
	}
}

// WithSystemPromptTemplate overrides the template. It is formatted with the
// same arguments as DefaultSystemPromptTemplate.
func WithSystemPromptTemplate(systemPromptTemplate string) PromptOption {
	return func(o *promptOptions) {
		o.systemPromptTemplate = systemPromptTemplate
	}
}

// WithMarkers makes the preamble announce the markers p recognizes.
func WithMarkers(p *marker.MarkerParser) PromptOption {
	return func(o *promptOptions) {
		o.markers = p
	}
}

// SystemPrompt renders the preamble handed to Build.
func SystemPrompt(opts ...PromptOption) string {
	options := promptOptions{
		companyName:          DefaultCompanyName,
		systemPromptTemplate: DefaultSystemPromptTemplate,
		markers:              marker.NewMarkerParser(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	if options.systemPrompt != "" {
		return options.systemPrompt
	}
	if strings.TrimSpace(options.companyName) == "" {
		options.companyName = DefaultCompanyName
	}
	if options.markers == nil {
		options.markers = marker.NewMarkerParser()
	}
	return fmt.Sprintf(options.systemPromptTemplate,
		options.companyName,
		options.markers.InterestMarker,
		options.markers.ScheduleMarker,
		options.markers.NoInterestMarker,
	)
}

// Greeting is the assistant's opening line for a new session.
func Greeting(companyName string) string {
	if strings.TrimSpace(companyName) == "" {
		companyName = DefaultCompanyName
	}
	return fmt.Sprintf("Olá! Sou o assistente virtual da %s. Como posso ajudá-lo hoje?", companyName)
}

package types

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
)

// FormatSlotOffer renders offered slots as a markdown table. The index column
// is the value the model must echo after the scheduling marker.
func FormatSlotOffer(slots []TimeSlot) string {
	if len(slots) == 0 {
		return ""
	}
	var buf strings.Builder
	buf.WriteString("Horários disponíveis:\n")
	table := tablewriter.NewTable(&buf, tablewriter.WithRenderer(renderer.NewMarkdown()))
	table.Header("Índice", "Horário")
	for i, slot := range slots {
		_ = table.Append(strconv.Itoa(i), slot.Label)
	}
	_ = table.Render()
	return strings.TrimRight(buf.String(), "\n")
}

// FormatMeetingDescription is the calendar event body for a lead's meeting.
func FormatMeetingDescription(lead LeadProfile) string {
	company := lead.Company
	if company == "" {
		company = "N/A"
	}
	need := lead.Need
	if need == "" {
		need = "N/A"
	}
	return fmt.Sprintf("Reunião agendada via webchat.\n\nEmpresa: %s\nNecessidade: %s", company, need)
}

func FormatMeetingSummary(lead LeadProfile) string {
	return "Reunião com " + lead.DisplayName()
}

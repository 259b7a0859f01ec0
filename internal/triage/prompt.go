package triage

import (
	"fmt"
	"strings"

	"github.com/daviddao/mailtriage/internal/llm"
	"github.com/daviddao/mailtriage/internal/types"
)

// Prompt is the instruction pair sent to the model for one email.
type Prompt struct {
	System string
	User   string
}

// Messages returns the prompt as a [system, user] conversation.
func (p Prompt) Messages() []llm.Message {
	return []llm.Message{
		{Role: llm.RoleSystem, Content: p.System},
		{Role: llm.RoleUser, Content: p.User},
	}
}

// BuildPrompt renders the triage prompt for email. It is pure: equal inputs
// always produce equal prompts.
func BuildPrompt(email types.Email, labelPrefix string) Prompt {
	var sys strings.Builder
	sys.WriteString("You are an email triage assistant.\n")
	sys.WriteString("Return ONLY valid JSON with keys: category, priority, action, label, star, archive, reason.\n")
	fmt.Fprintf(&sys, "category must be one of: %s.\n", join(types.Categories))
	fmt.Fprintf(&sys, "priority must be one of: %s.\n", join(types.Priorities))
	fmt.Fprintf(&sys, "action must be one of: %s.\n", join(types.Actions))
	sys.WriteString("reason must be ONE short sentence.\n")
	sys.WriteString("If unsure: category=Other, priority=Medium, action=None, star=false, archive=false.\n")
	fmt.Fprintf(&sys, "If action=Label, use label like '%[1]sFinance', '%[1]sSales', '%[1]sSupport', '%[1]sNewsletter'.\n", labelPrefix)
	sys.WriteString("Never include extra text outside JSON.")

	var user strings.Builder
	user.WriteString("Triage this email:\n")
	fmt.Fprintf(&user, "FROM: %s\n", email.From)
	fmt.Fprintf(&user, "TO: %s\n", email.To)
	fmt.Fprintf(&user, "SUBJECT: %s\n", email.Subject)
	fmt.Fprintf(&user, "DATE: %s\n", email.Date)
	fmt.Fprintf(&user, "SNIPPET: %s\n", email.Snippet)
	fmt.Fprintf(&user, "BODY: %s\n", email.Body)
	user.WriteString("\nReturn JSON only.")

	return Prompt{System: sys.String(), User: user.String()}
}

func join[T ~string](vals []T) string {
	s := make([]string, len(vals))
	for i, v := range vals {
		s[i] = string(v)
	}
	return strings.Join(s, ", ")
}

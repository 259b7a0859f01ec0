// Package policy applies deterministic business rules on top of a model's
// triage decision.
//
// Every rule is a pure function from Decision to Decision. Rules only ever set
// fields, and only replace the action while it is still None, so the first
// rule that fires chooses the action and applying the rules twice gives the
// same result as applying them once.
package policy

import (
	"fmt"
	"strings"

	"github.com/daviddao/mailtriage/internal/types"
)

// Config holds the policy settings for a run. Build it with NewConfig.
type Config struct {
	LabelPrefix        string
	ArchiveNewsletters bool
	ArchiveSpam        bool

	vips map[string]struct{}
}

// NewConfig builds a Config. VIP senders are normalized with NormalizeSender
// and blanks are dropped.
func NewConfig(labelPrefix string, vipSenders []string, archiveNewsletters, archiveSpam bool) Config {
	vips := make(map[string]struct{}, len(vipSenders))
	for _, s := range vipSenders {
		if n := NormalizeSender(s); n != "" {
			vips[n] = struct{}{}
		}
	}
	return Config{
		LabelPrefix:        labelPrefix,
		ArchiveNewsletters: archiveNewsletters,
		ArchiveSpam:        archiveSpam,
		vips:               vips,
	}
}

// IsVIP reports whether the normalized sender is a configured VIP.
func (c Config) IsVIP(sender string) bool {
	_, ok := c.vips[sender]
	return ok
}

// NormalizeSender extracts the address from a From header value.
// "Alice <Alice@Example.com>" becomes "alice@example.com".
func NormalizeSender(from string) string {
	s := from
	if i := strings.Index(s, "<"); i >= 0 && strings.Contains(s, ">") {
		s = s[i+1:]
		if j := strings.Index(s, ">"); j >= 0 {
			s = s[:j]
		}
	}
	return strings.ToLower(strings.TrimSpace(s))
}

// ParseSenders splits a comma-separated sender list.
func ParseSenders(list string) []string {
	var out []string
	for _, s := range strings.Split(list, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// ApplyVIP forces high priority and a star for VIP senders and notes the
// override in the reason. from is the raw From header.
func ApplyVIP(d types.Decision, from string, cfg Config) types.Decision {
	sender := NormalizeSender(from)
	if !cfg.IsVIP(sender) {
		return d
	}
	prefix := fmt.Sprintf("VIP sender (%s). ", sender)
	d.Priority = types.PriorityHigh
	d.Star = true
	d = setAction(d, types.ActionStar)
	if !strings.HasPrefix(d.Reason, prefix) {
		d.Reason = prefix + d.Reason
	}
	return d
}

// Rule is one step of the policy overlay.
type Rule func(types.Decision, Config) types.Decision

// Rules is the standard overlay, in order.
var Rules = []Rule{HighPriorityStar, DefaultLabel, Archival}

// HighPriorityStar stars every high-priority decision.
func HighPriorityStar(d types.Decision, _ Config) types.Decision {
	if d.Priority != types.PriorityHigh {
		return d
	}
	d.Star = true
	return setAction(d, types.ActionStar)
}

// DefaultLabel gives labelable categories a prefixed label when the model did
// not choose one.
func DefaultLabel(d types.Decision, cfg Config) types.Decision {
	if !d.Category.Labelable() {
		return d
	}
	if d.Label == "" {
		d.Label = cfg.LabelPrefix + string(d.Category)
	}
	return setAction(d, types.ActionLabel)
}

// Archival archives low-value newsletters and spam when enabled.
func Archival(d types.Decision, cfg Config) types.Decision {
	newsletter := cfg.ArchiveNewsletters && d.Category == types.CategoryNewsletter &&
		(d.Priority == types.PriorityLow || d.Priority == types.PriorityMedium)
	spam := cfg.ArchiveSpam && d.Category == types.CategorySpam
	if !newsletter && !spam {
		return d
	}
	d.Archive = true
	return setAction(d, types.ActionArchive)
}

func setAction(d types.Decision, a types.Action) types.Decision {
	if d.Action == types.ActionNone {
		d.Action = a
	}
	return d
}

// Engine folds an ordered rule list over decisions.
type Engine struct {
	cfg   Config
	rules []Rule
}

// NewEngine returns an Engine running Rules with cfg.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg, rules: Rules}
}

// Apply runs every rule in order and returns the final decision.
func (e *Engine) Apply(d types.Decision) types.Decision {
	for _, r := range e.rules {
		d = r(d, e.cfg)
	}
	return d
}

// Decide applies the VIP override for the sender followed by the rule overlay.
func (e *Engine) Decide(d types.Decision, from string) types.Decision {
	return e.Apply(ApplyVIP(d, from, e.cfg))
}

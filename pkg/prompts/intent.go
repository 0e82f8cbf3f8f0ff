package prompts

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-insights/pkg/anonymizer"
)

// IntentSystemPrompt instructs the model to answer with one SemanticQuery
// JSON object and nothing else.
const IntentSystemPrompt = `You translate business questions into a structured query intent.
You never write SQL. You may only use the metric and dimension names listed in the catalog.
Respond with a single JSON object and no other text.`

// BuildIntentPrompt creates the user prompt for intent extraction. The
// summary is the anonymized catalog; nothing tenant-specific beyond it is
// included.
func BuildIntentPrompt(summary *anonymizer.AnonymizedCatalog, question string) string {
	var prompt strings.Builder

	prompt.WriteString("# Question\n\n")
	prompt.WriteString(strings.TrimSpace(question))
	prompt.WriteString("\n\n")

	prompt.WriteString("# Catalog\n\n")
	prompt.WriteString("## Metrics\n\n")
	if summary != nil {
		for _, m := range summary.Metrics {
			prompt.WriteString(fmt.Sprintf("- %s: %s", m.Token, m.Description))
			if m.Format != "" {
				prompt.WriteString(fmt.Sprintf(" (format: %s)", m.Format))
			}
			if len(m.GroupableBy) > 0 {
				prompt.WriteString(fmt.Sprintf(" [groupable by: %s]", strings.Join(m.GroupableBy, ", ")))
			}
			prompt.WriteString("\n")
		}
	}

	prompt.WriteString("\n## Dimensions\n\n")
	if summary != nil {
		for _, d := range summary.Dimensions {
			prompt.WriteString(fmt.Sprintf("- %s: %s (category: %s)", d.Token, d.Description, d.Category))
			if len(d.AllowedValues) > 0 {
				values, _ := json.Marshal(d.AllowedValues)
				prompt.WriteString(fmt.Sprintf(" values: %s", values))
			}
			prompt.WriteString("\n")
		}
	}

	prompt.WriteString("\n# Rules\n\n")
	prompt.WriteString("- intent_kind is one of: ranking, trend, comparison, diagnostic, aggregate.\n")
	prompt.WriteString("- primary_metric and secondary_metrics use metric names exactly as listed.\n")
	prompt.WriteString("- group_by and filter dimensions use dimension names exactly as listed, and only categories the metric is groupable by.\n")
	prompt.WriteString("- filter operator is one of: eq, neq, in, not_in, gt, gte, lt, lte, between. Use \"values\" as an array.\n")
	prompt.WriteString("- time_window.kind is one of: last_n_days, last_n_weeks, last_n_months (with n), this_week, this_month, last_month, this_quarter, this_year, custom (with start and end as YYYY-MM-DD).\n")
	prompt.WriteString("- Omit fields the question does not ask for. Do not invent filters for access control.\n")

	prompt.WriteString("\n# Response Format\n\n")
	prompt.WriteString("```json\n")
	prompt.WriteString(`{
  "intent_kind": "ranking",
  "primary_metric": "<metric name>",
  "secondary_metrics": [],
  "group_by": ["<dimension name>"],
  "filters": [{"dimension": "<dimension name>", "operator": "in", "values": ["..."]}],
  "time_window": {"kind": "last_n_weeks", "n": 4},
  "sort": {"by": "<metric name>", "direction": "desc"},
  "limit": 10
}`)
	prompt.WriteString("\n```\n")

	return prompt.String()
}

package analysis

import (
	"fmt"
	"strings"

	"github.com/mannylee/cloudops-command-center/internal/events"
)

// MaxDescriptionBytes bounds the description portion of the prompt so one
// oversized event cannot blow the model's input budget.
const MaxDescriptionBytes = 8000

// maxResourcesInPrompt caps how many affected resources are listed.
const maxResourcesInPrompt = 25

// BuildPrompt renders the analysis prompt for one event. Oversized
// description fields are truncated to keep total prompt size reasonable.
func BuildPrompt(ev *events.HealthEvent) string {
	description := ev.Description
	if description == "" {
		description = "No description available"
	}
	if len(description) > MaxDescriptionBytes {
		description = description[:MaxDescriptionBytes] + "\n[description truncated]"
	}

	resources := "None specified"
	if len(ev.AffectedResources) > 0 {
		listed := ev.AffectedResources
		if len(listed) > maxResourcesInPrompt {
			listed = listed[:maxResourcesInPrompt]
		}
		resources = strings.Join(listed, ", ")
	}

	var b strings.Builder
	b.WriteString("You are a cloud operations expert specializing in outage analysis and business continuity. ")
	b.WriteString("Analyze this provider health event and determine its potential impact on workload availability.\n\n")
	fmt.Fprintf(&b, "Health Event:\n- Type: %s\n- Category: %s\n- Service: %s\n- Region: %s\n- Status: %s\n- Start Time: %s\n- Affected Resources: %s\n\n",
		ev.EventTypeCode, ev.Category, ev.Service, ev.Region, ev.Status, ev.StartTime.Format("2006-01-02 15:04:05"), resources)
	fmt.Fprintf(&b, "Event Description:\n%s\n\n", description)
	b.WriteString(`Respond with the following information in JSON format:
{
  "critical": boolean,
  "risk_level": "CRITICAL|HIGH|MEDIUM|LOW",
  "time_sensitivity": "Routine|Urgent|Critical",
  "risk_category": "Availability|Security|Performance|Cost|Compliance",
  "required_actions": "string",
  "impact_analysis": "string",
  "consequences_if_ignored": "string",
  "event_impact_type": "Service Outage|Billing Impact|Security Issue|Performance Degradation|Maintenance|Informational"
}

RISK LEVEL GUIDELINES:
- CRITICAL: will cause service outage or severe disruption if not addressed
- HIGH: significant impact but not an immediate outage
- MEDIUM: moderate impact requiring attention
- LOW: minimal impact, routine maintenance

Any event that will cause service downtime should be marked critical.
In consequences_if_ignored, state clearly what disruption occurs if the
event is not addressed. For end-of-support notifications, distinguish the
outcome when the recommended action is taken from the outcome when it is not.`)

	return b.String()
}

package analysis

import "strings"

// SimplifyDescription generates a short human-readable description from the
// service name and event type code, used on dashboard summaries alongside
// the full provider description.
func SimplifyDescription(service, eventTypeCode string) string {
	if service == "" {
		service = "Cloud"
	}
	typeUpper := strings.ToUpper(eventTypeCode)

	switch {
	case strings.Contains(typeUpper, "OPERATIONAL_ISSUE"):
		return service + " - Service disruptions or performance problems"
	case strings.Contains(typeUpper, "SECURITY_NOTIFICATION"):
		return service + " - Security-related alerts and warnings"
	case strings.Contains(typeUpper, "PLANNED_LIFECYCLE_EVENT"):
		return service + " - Lifecycle changes requiring action"
	case strings.Contains(typeUpper, "MAINTENANCE_SCHEDULED"),
		strings.Contains(typeUpper, "SYSTEM_MAINTENANCE"),
		strings.Contains(typeUpper, "PATCHING_RETIREMENT"):
		return service + " - Routine Maintenance"
	case strings.Contains(typeUpper, "UPDATE_AVAILABLE"):
		return service + " - Available software or system updates"
	case strings.Contains(typeUpper, "VPN_CONNECTIVITY"):
		return "VPN tunnel or connection status alert"
	case strings.Contains(typeUpper, "BILLING_NOTIFICATION"):
		return service + " - Billing or Cost change notification"
	}
	return service + " - Service-specific events"
}

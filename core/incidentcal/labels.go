package incidentcal

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

const (
	keyCategory     = "incident.line.category"
	keyPriority     = "incident.line.priority"
	keyStatus       = "incident.line.status"
	keyLocation     = "incident.line.location"
	keyDescription  = "incident.line.description"
	keyAssignedTo   = "incident.line.assigned_to"
	keyAssignedRole = "incident.line.assigned_role"
	keyReportedBy   = "incident.line.reported_by"
)

var supportedLanguages = []language.Tag{language.English, language.French}

var labelCatalog = buildCatalog()

func buildCatalog() catalog.Catalog {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	set := func(tag language.Tag, entries map[string]string) {
		for key, msg := range entries {
			if err := b.SetString(tag, key, msg); err != nil {
				panic(err)
			}
		}
	}
	set(language.English, map[string]string{
		keyCategory:     "Category: %s",
		keyPriority:     "Priority: %s",
		keyStatus:       "Status: %s",
		keyLocation:     "Location: %s",
		keyDescription:  "Description:",
		keyAssignedTo:   "Assigned to: %s",
		keyAssignedRole: "Assigned role: %s",
		keyReportedBy:   "Reported by %s on %s",

		"priority.low":       "Low",
		"priority.medium":    "Medium",
		"priority.high":      "High",
		"priority.urgent":    "Urgent",
		"status.open":        "Open",
		"status.in_progress": "In progress",
		"status.resolved":    "Resolved",
		"status.closed":      "Closed",
	})
	set(language.French, map[string]string{
		keyCategory:     "Catégorie : %s",
		keyPriority:     "Priorité : %s",
		keyStatus:       "Statut : %s",
		keyLocation:     "Lieu : %s",
		keyDescription:  "Description :",
		keyAssignedTo:   "Assigné à : %s",
		keyAssignedRole: "Rôle assigné : %s",
		keyReportedBy:   "Signalé par %s le %s",

		"priority.low":       "Basse",
		"priority.medium":    "Moyenne",
		"priority.high":      "Haute",
		"priority.urgent":    "Urgente",
		"status.open":        "Ouvert",
		"status.in_progress": "En cours",
		"status.resolved":    "Résolu",
		"status.closed":      "Fermé",
	})
	return b
}

var knownPriorities = map[string]struct{}{"low": {}, "medium": {}, "high": {}, "urgent": {}}

var knownStatuses = map[string]struct{}{"open": {}, "in_progress": {}, "resolved": {}, "closed": {}}

// newPrinter picks the closest supported language, English when nothing matches.
func newPrinter(lang string) *message.Printer {
	matcher := language.NewMatcher(supportedLanguages)
	tag, _ := language.MatchStrings(matcher, lang)
	base, _ := tag.Base()
	resolved := language.English
	for _, t := range supportedLanguages {
		if b, _ := t.Base(); b == base {
			resolved = t
			break
		}
	}
	return message.NewPrinter(resolved, message.Catalog(labelCatalog))
}

func priorityLabel(p *message.Printer, priority string) string {
	if _, ok := knownPriorities[priority]; !ok {
		return priority
	}
	return p.Sprintf("priority." + priority)
}

func statusLabel(p *message.Printer, status string) string {
	if _, ok := knownStatuses[status]; !ok {
		return status
	}
	return p.Sprintf("status." + status)
}

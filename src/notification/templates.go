package notification

import (
	"crewcomms/src/types"
	"strings"
)

type template struct {
	Title     string
	Message   string
	Icon      string
	Color     string
	Severity  types.Severity
	ActionURL string
}

var templates = map[types.CrewEventType]template{
	types.EVENT_MESSAGE_SENT: {
		Title: "New crew message", Message: "{preview}",
		Icon: "chat", Color: "#2196F3", Severity: types.SEVERITY_INFO,
		ActionURL: "/conversations/{conversationId}",
	},
	types.EVENT_JOB_SHARED: {
		Title: "New job shared", Message: "{jobTitle} at {company} ({matchScore}% match)",
		Icon: "work", Color: "#FF9800", Severity: types.SEVERITY_INFO,
		ActionURL: "/crews/{crewId}/jobs/{jobNotificationId}",
	},
	types.EVENT_JOB_RESPONDED: {
		Title: "Job response", Message: "A crew member {response} {jobTitle}",
		Icon: "how_to_reg", Color: "#4CAF50", Severity: types.SEVERITY_SUCCESS,
		ActionURL: "/crews/{crewId}/jobs/{jobNotificationId}",
	},
	types.EVENT_MEMBER_INVITED: {
		Title: "Crew invitation", Message: "You're invited to join {crewName} as {role}",
		Icon: "mail", Color: "#9C27B0", Severity: types.SEVERITY_INFO,
		ActionURL: "/invitations/{crewId}/{invitationId}",
	},
	types.EVENT_MEMBER_JOINED: {
		Title: "New crew member", Message: "A new {role} joined the crew",
		Icon: "person_add", Color: "#4CAF50", Severity: types.SEVERITY_SUCCESS,
		ActionURL: "/crews/{crewId}/members",
	},
	types.EVENT_MEMBER_REMOVED: {
		Title: "Crew member left", Message: "A member is no longer on the crew",
		Icon: "person_remove", Color: "#F44336", Severity: types.SEVERITY_WARNING,
		ActionURL: "/crews/{crewId}/members",
	},
	types.EVENT_ROLE_CHANGED: {
		Title: "Role updated", Message: "Your role is now {roleTitle}",
		Icon: "badge", Color: "#3F51B5", Severity: types.SEVERITY_INFO,
		ActionURL: "/crews/{crewId}/members",
	},
	types.EVENT_CREW_UPDATED: {
		Title: "Crew updated", Message: "{crewName} details were changed",
		Icon: "edit", Color: "#607D8B", Severity: types.SEVERITY_INFO,
		ActionURL: "/crews/{crewId}",
	},
	types.EVENT_ANNOUNCEMENT: {
		Title: "{title}", Message: "{message}",
		Icon: "campaign", Color: "#FF5722", Severity: types.SEVERITY_INFO,
	},
}

// render fills {key} placeholders from data. Unknown keys render empty.
func render(s string, data map[string]string) string {
	if !strings.Contains(s, "{") {
		return s
	}
	var b strings.Builder
	for {
		open := strings.IndexByte(s, '{')
		if open < 0 {
			b.WriteString(s)
			break
		}
		end := strings.IndexByte(s[open:], '}')
		if end < 0 {
			b.WriteString(s)
			break
		}
		b.WriteString(s[:open])
		b.WriteString(data[s[open+1:open+end]])
		s = s[open+end+1:]
	}
	return strings.TrimSpace(b.String())
}

package crm

import "strings"

// Band is one outreach contact.
type Band struct {
	ID               string `json:"id"`
	Name             string `json:"bandName"`
	Members          string `json:"members,omitempty"`
	Song             string `json:"song,omitempty"`
	Instagram        string `json:"instagram,omitempty"`
	Notes            string `json:"notes,omitempty"`
	GeneratedMessage string `json:"generatedMessage,omitempty"`
	FollowUpNotes    string `json:"followUpNotes,omitempty"`
	Status           string `json:"status"`
	DateAdded        string `json:"dateAdded,omitempty"`
	LastUpdated      string `json:"lastUpdated,omitempty"`
}

// BandUpdate is a partial update. Nil fields are left untouched.
type BandUpdate struct {
	Name             *string `json:"bandName,omitempty"`
	Members          *string `json:"members,omitempty"`
	Song             *string `json:"song,omitempty"`
	Instagram        *string `json:"instagram,omitempty"`
	Notes            *string `json:"notes,omitempty"`
	GeneratedMessage *string `json:"generatedMessage,omitempty"`
	FollowUpNotes    *string `json:"followUpNotes,omitempty"`
	Status           *string `json:"status,omitempty"`
}

// Column names in the outreach table. The Instagram handle lives in
// the Assignee column, a leftover from the table's first life as a
// task tracker.
const (
	fieldName             = "Artist Name"
	fieldMembers          = "Members"
	fieldSong             = "Song"
	fieldInstagram        = "Assignee"
	fieldNotes            = "Original Notes"
	fieldGeneratedMessage = "Generated Message"
	fieldFollowUpNotes    = "Follow-up Notes"
	fieldStatus           = "Status"
	fieldDateAdded        = "Date Added"
	fieldLastUpdated      = "Last Updated"
)

// DefaultStatus is assigned to bands created without one.
const DefaultStatus = "not_messaged"

// statusToRemote maps internal statuses onto the single select the
// table currently defines.
func statusToRemote(status string) string {
	return "Talking To"
}

func statusFromRemote(status string) string {
	if status == "" {
		return DefaultStatus
	}
	if status == "Talking To" {
		return "talking_to"
	}
	return strings.ReplaceAll(strings.ToLower(status), " ", "_")
}

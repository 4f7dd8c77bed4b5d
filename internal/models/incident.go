package models

import "fmt"

// Status is the operational state of an application.
type Status string

const (
	StatusOK       Status = "ok"
	StatusIncident Status = "incident"
)

// ParseStatus validates a status string.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusOK, StatusIncident:
		return Status(s), nil
	default:
		return "", fmt.Errorf("invalid status %q (want %q or %q)", s, StatusOK, StatusIncident)
	}
}

// IncidentRecord is the persisted status of one application.
type IncidentRecord struct {
	ApplicationID   string `json:"applicationId" yaml:"application_id"`
	ApplicationName string `json:"applicationName" yaml:"application_name"`
	Status          Status `json:"status" yaml:"status"`
}

// Application is static display metadata for a known application.
type Application struct {
	ID   string
	Name string
	Icon string
}

// DefaultApplications lists the applications the helpdesk backend recognises.
var DefaultApplications = []Application{
	{ID: "webex", Name: "Webex", Icon: "📹"},
	{ID: "cicssam", Name: "CICsSAM", Icon: "🗂"},
	{ID: "samnet", Name: "SAMnet", Icon: "🌐"},
	{ID: "phonebook", Name: "Phonebook", Icon: "📞"},
	{ID: "myparking", Name: "MyParking", Icon: "🅿"},
	{ID: "triskell", Name: "Triskell", Icon: "📊"},
	{ID: "lotusnotes", Name: "LotusNotes", Icon: "📝"},
	{ID: "ms365", Name: "MS365", Icon: "📧"},
	{ID: "horaire-mobile", Name: "Horaire Mobile", Icon: "⏱"},
	{ID: "sas", Name: "SAS", Icon: "📈"},
	{ID: "artis", Name: "Artis", Icon: "🎨"},
	{ID: "argos", Name: "Argos", Icon: "🔍"},
	{ID: "myportal", Name: "MyPortal", Icon: "🏠"},
	{ID: "dsknet", Name: "DSKNet", Icon: "💾"},
	{ID: "gesper", Name: "Gesper", Icon: "👥"},
	{ID: "mygesper", Name: "MyGesper", Icon: "👤"},
}

// DefaultIncidents returns a fresh collection with every default application in status ok.
func DefaultIncidents() []IncidentRecord {
	out := make([]IncidentRecord, len(DefaultApplications))
	for i, app := range DefaultApplications {
		out[i] = IncidentRecord{ApplicationID: app.ID, ApplicationName: app.Name, Status: StatusOK}
	}
	return out
}

// LookupApplication resolves display metadata for a record.
// Unknown ids fall back to the record's own name with a generic icon.
func LookupApplication(rec IncidentRecord) Application {
	for _, app := range DefaultApplications {
		if app.ID == rec.ApplicationID {
			return app
		}
	}
	return Application{ID: rec.ApplicationID, Name: rec.ApplicationName, Icon: "•"}
}

package models

// ChatbotStats are the global conversation counters shown on the dashboard.
type ChatbotStats struct {
	DailyMessages   int `json:"daily_messages"`
	WeeklyMessages  int `json:"weekly_messages"`
	TotalMessages   int `json:"total_messages"`
	CurrentSessions int `json:"current_sessions"`
}

// ApplicationStat aggregates incident reports for one application.
type ApplicationStat struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	IncidentCount int    `json:"incident_count"`
	UserCount     int    `json:"user_count"`
	Status        Status `json:"status"`
}

// HourlyIncidents is one bucket of the incident histogram.
type HourlyIncidents struct {
	Hour      string `json:"hour"`
	Incidents int    `json:"incidents"`
}

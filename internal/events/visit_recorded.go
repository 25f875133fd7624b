package events

// VisitRecorded is emitted when a redirect is served and carries the
// request context the analytics pipeline needs to replay the visit.
type VisitRecorded struct {
	EventID    string `json:"eventId"`
	Key        string `json:"key"`
	IP         string `json:"ip,omitempty"`
	Referer    string `json:"referer,omitempty"`
	OccurredAt string `json:"occurredAt"`
}

package jobs

// EmailSendPayload carries a fully rendered message; the worker only delivers it.
type EmailSendPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	Text    string `json:"text,omitempty"`
	Kind    string `json:"kind,omitempty"`
}

// CleanupPendingPayload asks for removal of signups left unverified for Days.
type CleanupPendingPayload struct {
	Days        int    `json:"days"`
	RequestedBy string `json:"requestedBy,omitempty"`
}

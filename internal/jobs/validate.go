package jobs

import "strings"

const maxCleanupDays = 365

// ValidatePayload checks that payload is the struct registered for t and
// carries the fields the executor needs.
func ValidatePayload(t JobType, payload any) error {
	if !t.IsValid() {
		return ErrInvalidJobType
	}

	trim := strings.TrimSpace

	switch t {
	case TypeEmailSend:
		var p EmailSendPayload
		switch v := payload.(type) {
		case EmailSendPayload:
			p = v
		case *EmailSendPayload:
			p = *v
		default:
			return ErrPayloadTypeMismatch
		}
		if trim(p.To) == "" || trim(p.Subject) == "" || (trim(p.HTML) == "" && trim(p.Text) == "") {
			return ErrInvalidJobPayload
		}
		return nil

	case TypeCleanupPending:
		var p CleanupPendingPayload
		switch v := payload.(type) {
		case CleanupPendingPayload:
			p = v
		case *CleanupPendingPayload:
			p = *v
		default:
			return ErrPayloadTypeMismatch
		}
		if p.Days < 1 || p.Days > maxCleanupDays {
			return ErrInvalidJobPayload
		}
		return nil

	default:
		return ErrInvalidJobType
	}
}

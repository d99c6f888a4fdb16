package jobs

import (
	"encoding/json"
	"fmt"
)

// EncodePayload checks that payload matches t, validates it and returns
// its JSON form.
func EncodePayload(t JobType, payload any) (json.RawMessage, error) {
	if err := ValidatePayload(t, payload); err != nil {
		return nil, err
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJobPayload, err)
	}
	return b, nil
}

// DecodePayload unmarshals a stored payload into the typed struct for t.
func DecodePayload(t JobType, raw json.RawMessage) (any, error) {
	if !t.IsValid() {
		return nil, ErrInvalidJobType
	}
	if len(raw) == 0 {
		return nil, ErrInvalidJobPayload
	}

	var (
		p   any
		err error
	)

	switch t {
	case TypeEmailSend:
		var v EmailSendPayload
		err = json.Unmarshal(raw, &v)
		p = v
	case TypeCleanupPending:
		var v CleanupPendingPayload
		err = json.Unmarshal(raw, &v)
		p = v
	default:
		return nil, ErrInvalidJobType
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJobPayload, err)
	}
	if err := ValidatePayload(t, p); err != nil {
		return nil, err
	}
	return p, nil
}

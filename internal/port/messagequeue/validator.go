package messagequeue

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Validate checks whether data is valid JSON conforming to the schema
// associated with the given subject. Unknown subjects pass validation.
func Validate(subject string, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("invalid JSON on subject %s", subject)
	}

	var base *LeaseEventPayload
	switch subject {
	case SubjectLeaseSigned:
		p := &SignaturePayload{}
		if err := json.Unmarshal(data, p); err != nil {
			return fmt.Errorf("schema validation failed for %s: %w", subject, err)
		}
		if p.Party == "" {
			return fmt.Errorf("schema validation failed for %s: party is required", subject)
		}
		base = &p.LeaseEventPayload
	case SubjectLeaseChangeRequested, SubjectLeaseChangeResolved:
		p := &ChangeRequestPayload{}
		if err := json.Unmarshal(data, p); err != nil {
			return fmt.Errorf("schema validation failed for %s: %w", subject, err)
		}
		base = &p.LeaseEventPayload
	case SubjectLeaseCreated, SubjectLeaseUpdated, SubjectLeaseTransitioned, SubjectLeaseExpired:
		base = &LeaseEventPayload{}
		if err := json.Unmarshal(data, base); err != nil {
			return fmt.Errorf("schema validation failed for %s: %w", subject, err)
		}
	default:
		return nil
	}

	if base.LeaseID == "" || base.Status == "" {
		return fmt.Errorf("schema validation failed for %s: %w", subject, errors.New("lease_id and status are required"))
	}
	return nil
}

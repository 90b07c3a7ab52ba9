package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"chipchip/internal/models"
)

// SchemaVersion is the version written to the history key
const SchemaVersion = 2

type record struct {
	Version  int              `json:"version"`
	Sessions []models.Session `json:"sessions"`
}

func encode(sessions []models.Session) (string, error) {
	rec := record{Version: SchemaVersion, Sessions: make([]models.Session, len(sessions))}
	for i, s := range sessions {
		if s.Messages == nil {
			s.Messages = []models.Message{}
		}
		rec.Sessions[i] = s
	}

	raw, err := json.Marshal(rec)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// decode parses the history value. Version 1 is the bare session array
// written by the browser client; migrated reports that it must be rewritten.
func decode(raw string) (sessions []models.Session, migrated bool, err error) {
	data := bytes.TrimSpace([]byte(raw))
	if len(data) == 0 {
		return nil, false, errors.New("empty history value")
	}

	if data[0] == '[' {
		if err := json.Unmarshal(data, &sessions); err != nil {
			return nil, false, fmt.Errorf("parse v1 history: %w", err)
		}
		return validSessions(sessions), true, nil
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, false, fmt.Errorf("parse history: %w", err)
	}
	switch {
	case rec.Version > SchemaVersion:
		return nil, false, fmt.Errorf("%w: %d", ErrUnsupportedVersion, rec.Version)
	case rec.Version < SchemaVersion:
		return nil, false, fmt.Errorf("missing or invalid history version %d", rec.Version)
	}
	return validSessions(rec.Sessions), false, nil
}

func decodeLegacy(raw string) ([]models.Message, error) {
	var messages []models.Message
	if err := json.Unmarshal([]byte(raw), &messages); err != nil {
		return nil, fmt.Errorf("parse legacy messages: %w", err)
	}
	return messages, nil
}

// validSessions drops records without an id
func validSessions(sessions []models.Session) []models.Session {
	out := sessions[:0]
	for _, s := range sessions {
		if s.ID == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}

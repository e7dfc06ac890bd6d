package events

import (
	"encoding/json"
	"time"
)

const (
	TypeRunStarted      = "run_started"
	TypeRunFinished     = "run_finished"
	TypeRunFailed       = "run_failed"
	TypeOverrideChanged = "override_changed"
)

type Event struct {
	Type      string          `json:"type"`
	Version   int             `json:"v"`
	At        time.Time       `json:"at"`
	RequestID string          `json:"request_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

func MakeEvent(reqID, typ string, v int, data any) string {
	var raw json.RawMessage
	if data != nil {
		b, _ := json.Marshal(data)
		raw = b
	}
	e := Event{
		Type:      typ,
		Version:   v,
		At:        time.Now().UTC(),
		RequestID: reqID,
		Data:      raw,
	}
	b, _ := json.Marshal(e)
	return string(b)
}

// RunEvent is the payload of the run_* events.
type RunEvent struct {
	RunID        string `json:"run_id"`
	SettingsHash string `json:"settings_hash,omitempty"`
	Kept         int    `json:"kept,omitempty"`
	New          int    `json:"new,omitempty"`
	Errors       int    `json:"source_errors,omitempty"`
	Error        string `json:"error,omitempty"`
}

package redisprovider

import (
	"encoding/json"
	"fmt"
	"time"

	portalAuth "github.com/MrEthical07/portalAuth"
)

// wireEvent is the JSON payload published on a device's event channel.
type wireEvent struct {
	Kind   string    `json:"kind"`
	UserID string    `json:"user_id,omitempty"`
	Email  string    `json:"email,omitempty"`
	At     time.Time `json:"at"`
}

func encodeEvent(ev portalAuth.SessionEvent) ([]byte, error) {
	w := wireEvent{Kind: ev.Kind.String(), At: ev.At}
	if ev.Identity != nil {
		w.UserID = ev.Identity.UserID
		w.Email = ev.Identity.Email
	}
	return json.Marshal(w)
}

func decodeEvent(payload []byte) (portalAuth.SessionEvent, error) {
	var w wireEvent
	if err := json.Unmarshal(payload, &w); err != nil {
		return portalAuth.SessionEvent{}, err
	}
	kind, ok := portalAuth.ParseSessionEventKind(w.Kind)
	if !ok {
		return portalAuth.SessionEvent{}, fmt.Errorf("unknown event kind %q", w.Kind)
	}
	ev := portalAuth.SessionEvent{Kind: kind, At: w.At}
	if w.UserID != "" {
		ev.Identity = &portalAuth.Identity{UserID: w.UserID, Email: w.Email}
	}
	return ev, nil
}

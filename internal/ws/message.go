package ws

import "time"

// Message is the envelope for all WebSocket messages. Type mirrors the
// bus topic the message was relayed from (treesync.run.started,
// treesync.device.added, ...) and Data carries the event payload exactly
// as the emitting module published it. RunID is hoisted out of run
// lifecycle payloads so clients can filter without decoding Data.
type Message struct {
	Type      string    `json:"type"`
	RunID     string    `json:"run_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

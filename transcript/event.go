// Package transcript derives conversation items into the transcript
// data-channel event (§6) and the persisted transcript_turns row, handling
// both the pipeline worker's buffered item stream and the realtime worker's
// post-hoc safety review (§4.5).
package transcript

// Topic is the fixed room data-channel topic transcript events publish on
// (§6).
const Topic = "transcript"

// Event is the wire shape published on the room data channel (§6), UTF-8
// JSON. Subject is nil for the classifier subject, since the wire schema
// only names math/history/english/null.
type Event struct {
	Speaker   string  `json:"speaker"`
	Role      string  `json:"role"`
	Content   string  `json:"content"`
	Subject   *string `json:"subject"`
	Turn      int     `json:"turn"`
	SessionID string  `json:"session_id"`
}

// Item is a conversation item signal (§3: transient, emitted as a signal,
// not stored in this core) before enrichment with session-derived speaker
// and subject.
type Item struct {
	Role    string // "user" or "assistant"
	Content string
}

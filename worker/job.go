// Package worker implements the Dual-Worker Runtime (§4.5): session
// construction for the pipeline worker ("learning-orchestrator") and the
// realtime worker ("learning-english"), registered against the media-plane
// control service. The control service's own job-dispatch and signal
// machinery is an external collaborator (§1); this package only owns what
// happens once a job and its signals reach the core.
package worker

// JoinJob describes a room-join assignment handed to a registered worker
// by the media-plane control service. StudentIdentity is the joining
// participant's identity, carried by the room token (out of scope here).
type JoinJob struct {
	RoomName        string
	StudentIdentity string
	Metadata        string
}

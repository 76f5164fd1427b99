// Package transport is the boundary client for the media-plane control
// service (§6): dispatching the realtime worker into a live room and
// publishing transcript data packets, without tearing the room down.
package transport

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/livekit/protocol/auth"
	"github.com/livekit/protocol/livekit"
)

// DispatchRequest names the realtime worker to join a room, carrying
// dispatch metadata (§6) so the worker can reconstruct session state.
type DispatchRequest struct {
	RoomName  string
	AgentName string
	Metadata  string
}

// Client is the media-plane control service boundary: issue an agent
// dispatch request, publish a data packet to a room's data channel.
type Client interface {
	Dispatch(ctx context.Context, req DispatchRequest) error
	PublishData(ctx context.Context, roomName string, data []byte, topic string) error
}

// LiveKitClient backs Client with LiveKit's AgentDispatch and RoomService
// twirp RPCs.
type LiveKitClient struct {
	dispatch  livekit.AgentDispatchService
	rooms     livekit.RoomService
	apiKey    string
	apiSecret string
}

// NewLiveKitClient builds a Client against the LiveKit server at host
// (e.g. "https://my-project.livekit.cloud"), authenticating RPCs with a
// per-call signed access token.
func NewLiveKitClient(host, apiKey, apiSecret string) *LiveKitClient {
	c := &LiveKitClient{apiKey: apiKey, apiSecret: apiSecret}
	c.dispatch = livekit.NewAgentDispatchServiceJSONClient(host, &http.Client{})
	c.rooms = livekit.NewRoomServiceJSONClient(host, &http.Client{})
	return c
}

func (c *LiveKitClient) signedContext(ctx context.Context, roomName string) (context.Context, error) {
	grant := &auth.VideoGrant{RoomAdmin: true, Room: roomName}
	token := auth.NewAccessToken(c.apiKey, c.apiSecret).
		AddGrant(grant).
		SetValidFor(time.Minute)
	jwt, err := token.ToJWT()
	if err != nil {
		return nil, fmt.Errorf("transport: sign token: %w", err)
	}
	return withBearerToken(ctx, jwt), nil
}

// Dispatch issues an AgentDispatch.CreateDispatch request naming the
// realtime worker and the current room (§4.4 route_to_english).
func (c *LiveKitClient) Dispatch(ctx context.Context, req DispatchRequest) error {
	ctx, err := c.signedContext(ctx, req.RoomName)
	if err != nil {
		return err
	}
	_, err = c.dispatch.CreateDispatch(ctx, &livekit.CreateAgentDispatchRequest{
		Room:      req.RoomName,
		AgentName: req.AgentName,
		Metadata:  req.Metadata,
	})
	if err != nil {
		return fmt.Errorf("transport: dispatch agent %q to room %q: %w", req.AgentName, req.RoomName, err)
	}
	return nil
}

// PublishData sends a data packet to every participant in roomName over the
// given topic (used for publishing conversation.item JSON, §6).
func (c *LiveKitClient) PublishData(ctx context.Context, roomName string, data []byte, topic string) error {
	ctx, err := c.signedContext(ctx, roomName)
	if err != nil {
		return err
	}
	_, err = c.rooms.SendData(ctx, &livekit.SendDataRequest{
		Room:  roomName,
		Data:  data,
		Kind:  livekit.DataPacket_RELIABLE,
		Topic: &topic,
	})
	if err != nil {
		return fmt.Errorf("transport: publish data to room %q: %w", roomName, err)
	}
	return nil
}

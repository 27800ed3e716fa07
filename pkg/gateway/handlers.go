package gateway

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/teamforge/collab/pkg/membership"
	"github.com/teamforge/collab/pkg/message"
)

// handleJoinProject checks membership, adds the connection to the room and
// replays recent history to the joining connection only.
func (g *Gateway) handleJoinProject(c Conn, event *InEvent) error {
	var payload JoinProjectPayload
	if err := json.Unmarshal(event.Body, &payload); err != nil {
		return ErrInvalidRequest
	}
	if payload.ProjectID == "" {
		return ErrInvalidRequest
	}

	ctx, cancel := g.opContext()
	defer cancel()

	if err := g.gate.Check(ctx, c.Identity().UserID, payload.ProjectID, membership.CapParticipate); err != nil {
		return err
	}

	g.rooms.Add(payload.ProjectID, c)

	history, err := g.store.ListRecent(ctx, payload.ProjectID, g.historyLimit)
	if err != nil {
		g.logger.Error("load history", slog.String("project.id", payload.ProjectID),
			slog.String("error", err.Error()))
		return ErrPersistenceFailed
	}
	if history == nil {
		history = []message.Message{}
	}

	// replay is point-to-point, never broadcast
	if err := c.send(&OutEvent{Type: EventPreviousMessages, Body: history}); err != nil {
		g.logger.Debug("drop history replay", slog.String("conn.id", c.ID()))
	}

	g.logger.Info("joined project", slog.String("conn.id", c.ID()),
		slog.String("project.id", payload.ProjectID))

	return nil
}

// handleSendMessage re-validates membership, durably appends the message
// and only then fans it out to every connection in the room, the sender's
// own included. The append and the broadcast happen under the room's send
// lock so broadcast order matches append order.
func (g *Gateway) handleSendMessage(c Conn, event *InEvent) error {
	var payload SendMessagePayload
	if err := json.Unmarshal(event.Body, &payload); err != nil {
		return ErrInvalidRequest
	}

	// the connection identity is the authoritative sender, regardless of
	// what the payload claims
	input := message.CreateInput{
		ProjectID: payload.ProjectID,
		Sender:    c.Identity().UserID,
		Content:   payload.Content,
		Kind:      message.TextMessage,
	}
	input.Normalize()
	if err := input.Validate(); err != nil {
		return err
	}

	ctx, cancel := g.opContext()
	defer cancel()

	// membership may have been revoked since join
	if err := g.gate.Check(ctx, input.Sender, input.ProjectID, membership.CapParticipate); err != nil {
		return err
	}

	var handlerErr error
	g.rooms.Serialize(input.ProjectID, func() {
		msg, err := g.store.Append(ctx, input)
		if err != nil {
			g.logger.Error("append message", slog.String("project.id", input.ProjectID),
				slog.String("error", err.Error()))
			handlerErr = fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
			return
		}
		g.broadcast(input.ProjectID, &OutEvent{Type: EventNewMessage, Body: msg})
	})

	return handlerErr
}

// Typing signals are low stakes: no authorization round trip, but events
// from connections that are not room members are dropped silently.
func (g *Gateway) handleTypingStart(c Conn, event *InEvent) error {
	payload, ok, err := g.decodeTyping(c, event)
	if err != nil || !ok {
		return err
	}

	g.presence.StartTyping(payload.ProjectID, payload.UserID)
	g.broadcast(payload.ProjectID, &OutEvent{Type: EventUserTyping, Body: payload}, c.ID())
	return nil
}

func (g *Gateway) handleTypingStop(c Conn, event *InEvent) error {
	payload, ok, err := g.decodeTyping(c, event)
	if err != nil || !ok {
		return err
	}

	g.presence.StopTyping(payload.ProjectID, payload.UserID)
	g.broadcast(payload.ProjectID, &OutEvent{Type: EventUserStoppedTyping, Body: payload}, c.ID())
	return nil
}

func (g *Gateway) decodeTyping(c Conn, event *InEvent) (TypingPayload, bool, error) {
	var payload TypingPayload
	if err := json.Unmarshal(event.Body, &payload); err != nil {
		return payload, false, ErrInvalidRequest
	}
	if payload.ProjectID == "" {
		return payload, false, ErrInvalidRequest
	}

	payload.UserID = c.Identity().UserID
	if payload.UserName == "" {
		payload.UserName = c.Identity().Name
	}

	return payload, g.rooms.Contains(payload.ProjectID, c.ID()), nil
}

// handlePing echoes the body back with the server time attached. No room
// membership required; clients use it as a liveness probe.
func (g *Gateway) handlePing(c Conn, event *InEvent) error {
	body := make(map[string]any)
	if len(event.Body) > 0 {
		if err := json.Unmarshal(event.Body, &body); err != nil {
			body = make(map[string]any)
		}
	}
	body["serverTime"] = time.Now().UTC().Format(time.RFC3339Nano)

	if err := c.send(&OutEvent{Type: EventPong, Body: body}); err != nil {
		g.logger.Debug("drop pong", slog.String("conn.id", c.ID()))
	}
	return nil
}

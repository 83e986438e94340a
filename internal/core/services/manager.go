package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/koustubh-k/Synk-App/internal/core/contracts"
	"github.com/koustubh-k/Synk-App/internal/core/domain"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type IManagerService interface {
	// HandleConnect registers the connection, sends "connected" and runs the
	// online transition.
	HandleConnect(ctx context.Context, c contracts.Client) error
	// HandleDisconnect releases the registry entry and every room
	// subscription of the connection.
	HandleDisconnect(ctx context.Context, c contracts.Client)
	// HandleEvent dispatches one inbound frame.
	HandleEvent(ctx context.Context, c contracts.Client, raw []byte)
}

var tracer = otel.Tracer("manager-service")

type ManagerService struct {
	presence    *PresenceService
	message     *MessageService
	rooms       contracts.RoomFanout
	broadcaster contracts.Broadcaster
	log         *slog.Logger
}

func NewManagerService(
	log *slog.Logger,
	presence *PresenceService,
	message *MessageService,
	rooms contracts.RoomFanout,
	broadcaster contracts.Broadcaster,
) *ManagerService {
	return &ManagerService{
		log:         log,
		presence:    presence,
		message:     message,
		rooms:       rooms,
		broadcaster: broadcaster,
	}
}

func (m *ManagerService) HandleConnect(ctx context.Context, c contracts.Client) error {
	ctx, span := tracer.Start(ctx, "ManagerService.HandleConnect", trace.WithAttributes(
		attribute.String("user_id", c.UserID()),
		attribute.String("conn_id", c.ID()),
	))
	defer span.End()
	if err := m.presence.Connect(ctx, c); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "connect failed")
		m.log.ErrorContext(ctx, "manager - handle connect - register failed", "user_id", c.UserID(), "conn_id", c.ID(), "err", err)
		return err
	}
	frame, err := domain.EncodeFrame(domain.EventConnected, domain.ConnectedPayload{
		UserID:       c.UserID(),
		ConnectionID: c.ID(),
	})
	if err == nil {
		err = c.Send(ctx, frame)
	}
	if err != nil {
		span.RecordError(err)
		m.log.WarnContext(ctx, "manager - handle connect - send connected failed", "user_id", c.UserID(), "conn_id", c.ID(), "err", err)
	}
	m.log.InfoContext(ctx, "manager - handle connect - connected", "user_id", c.UserID(), "conn_id", c.ID())
	return nil
}

func (m *ManagerService) HandleDisconnect(ctx context.Context, c contracts.Client) {
	ctx, span := tracer.Start(ctx, "ManagerService.HandleDisconnect", trace.WithAttributes(
		attribute.String("user_id", c.UserID()),
		attribute.String("conn_id", c.ID()),
	))
	defer span.End()
	m.presence.Disconnect(ctx, c)
	m.log.InfoContext(ctx, "manager - handle disconnect - disconnected", "user_id", c.UserID(), "conn_id", c.ID())
}

// HandleEvent dispatches one frame. Failures are answered with an "error"
// frame to c alone; nothing is broadcast and the connection stays open.
func (m *ManagerService) HandleEvent(ctx context.Context, c contracts.Client, raw []byte) {
	if !gjson.ValidBytes(raw) {
		m.fail(ctx, c, "", fmt.Errorf("%w: frame is not valid json", domain.ErrValidation))
		return
	}
	event := gjson.GetBytes(raw, "event").String()
	data := gjson.GetBytes(raw, "data")
	ack := gjson.GetBytes(raw, "ack").String()

	ctx, span := tracer.Start(ctx, "ManagerService.HandleEvent", trace.WithAttributes(
		attribute.String("event", event),
		attribute.String("user_id", c.UserID()),
		attribute.String("conn_id", c.ID()),
		attribute.Int("payload_size", len(raw)),
	))
	defer span.End()

	if err := m.dispatch(ctx, c, event, data, ack); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, domain.ErrorCode(err))
		m.fail(ctx, c, event, err)
	}
}

func (m *ManagerService) dispatch(ctx context.Context, c contracts.Client, event string, data gjson.Result, ack string) error {
	switch event {
	case domain.EventJoinRoom:
		roomID, err := roomArg(data)
		if err != nil {
			return err
		}
		m.rooms.Join(c, roomID)
		m.log.DebugContext(ctx, "manager - join room - joined", "room_id", roomID, "conn_id", c.ID())
		return nil

	case domain.EventLeaveRoom:
		roomID, err := roomArg(data)
		if err != nil {
			return err
		}
		m.rooms.Leave(c.ID(), roomID)
		m.log.DebugContext(ctx, "manager - leave room - left", "room_id", roomID, "conn_id", c.ID())
		return nil

	case domain.EventTyping, domain.EventStopTyping:
		roomID, err := roomArg(data)
		if err != nil {
			return err
		}
		frame, err := domain.EncodeFrame(event, domain.RoomPayload{RoomID: roomID})
		if err != nil {
			return err
		}
		m.broadcaster.PublishRoom(ctx, roomID, frame, c.ID())
		return nil

	case domain.EventNewMessage:
		if !data.IsObject() {
			return fmt.Errorf("%w: new message expects an object", domain.ErrValidation)
		}
		var in domain.NewMessagePayload
		if err := json.Unmarshal([]byte(data.Raw), &in); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrValidation, err)
		}
		_, err := m.message.SendMessage(ctx, c.UserID(), in)
		return err

	case domain.EventCheckOnline:
		ids, err := userIDsArg(data)
		if err != nil {
			return err
		}
		statuses := m.presence.CheckOnline(ctx, ids)
		var frame []byte
		if ack != "" {
			frame, err = domain.EncodeAck(ack, statuses)
		} else {
			frame, err = domain.EncodeFrame(domain.EventCheckOnline, statuses)
		}
		if err != nil {
			return err
		}
		return c.Send(ctx, frame)

	default:
		return fmt.Errorf("%w: %q", domain.ErrUnknownEvent, event)
	}
}

func (m *ManagerService) fail(ctx context.Context, c contracts.Client, event string, err error) {
	code := domain.ErrorCode(err)
	level := slog.LevelWarn
	if code == domain.CodeInternal || code == domain.CodePersistenceFailed {
		level = slog.LevelError
	}
	m.log.Log(ctx, level, "manager - handle event - rejected", "event", event, "code", code, "user_id", c.UserID(), "conn_id", c.ID(), "err", err)

	frame, encErr := domain.EncodeFrame(domain.EventError, domain.ErrorMessage{
		Code:    code,
		Message: publicMessage(err),
		Event:   event,
	})
	if encErr != nil {
		return
	}
	if sendErr := c.Send(ctx, frame); sendErr != nil && !errors.Is(sendErr, domain.ErrClientClosed) {
		m.log.WarnContext(ctx, "manager - handle event - send error frame failed", "conn_id", c.ID(), "err", sendErr)
	}
}

// publicMessage keeps store internals out of frames sent to clients.
func publicMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrPersistence):
		return domain.ErrPersistence.Error()
	case domain.ErrorCode(err) == domain.CodeInternal:
		return "internal error"
	default:
		return err.Error()
	}
}

// roomArg accepts either "roomId" or {"roomId": "..."}.
func roomArg(data gjson.Result) (string, error) {
	var roomID string
	switch {
	case data.Type == gjson.String:
		roomID = data.String()
	case data.IsObject():
		roomID = data.Get("roomId").String()
		if roomID == "" {
			roomID = data.Get("chatId").String()
		}
	}
	if roomID == "" {
		return "", fmt.Errorf("%w: roomId is required", domain.ErrValidation)
	}
	return roomID, nil
}

func userIDsArg(data gjson.Result) ([]string, error) {
	if !data.IsArray() {
		return nil, fmt.Errorf("%w: expected an array of user ids", domain.ErrValidation)
	}
	items := data.Array()
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if item.Type != gjson.String {
			return nil, fmt.Errorf("%w: user ids must be strings", domain.ErrValidation)
		}
		ids = append(ids, item.String())
	}
	return ids, nil
}

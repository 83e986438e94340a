package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/koustubh-k/Synk-App/internal/core/contracts"
	"github.com/koustubh-k/Synk-App/internal/core/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var messageTracer = otel.Tracer("message-service")

const defaultProfileCacheSize = 10000

// MessageService persists chat messages and publishes them to their room
// once the store has confirmed them.
type MessageService struct {
	repo        domain.MessageRepository
	users       domain.UserRepository
	broadcaster contracts.Broadcaster
	profiles    *lru.Cache[string, domain.Sender]
	log         *slog.Logger
}

func NewMessageService(
	log *slog.Logger,
	repo domain.MessageRepository,
	users domain.UserRepository,
	broadcaster contracts.Broadcaster,
	profileCacheSize int,
) *MessageService {
	if profileCacheSize <= 0 {
		profileCacheSize = defaultProfileCacheSize
	}
	profiles, _ := lru.New[string, domain.Sender](profileCacheSize)
	return &MessageService{
		log:         log,
		repo:        repo,
		users:       users,
		broadcaster: broadcaster,
		profiles:    profiles,
	}
}

// SendMessage validates and persists the message, then publishes
// "message received" to every subscriber of the room, the sender included.
// Nothing is published when persistence fails.
func (s *MessageService) SendMessage(
	ctx context.Context,
	senderID string,
	in domain.NewMessagePayload,
) (*domain.ChatMessage, error) {
	roomID := in.Room()
	ctx, span := messageTracer.Start(ctx, "MessageService.SendMessage", trace.WithAttributes(
		attribute.String("sender_id", senderID),
		attribute.String("room_id", roomID),
		attribute.Int("content_size", len(in.Content)),
	))
	defer span.End()

	if roomID == "" {
		span.RecordError(domain.ErrValidation)
		return nil, fmt.Errorf("%w: roomId is required", domain.ErrValidation)
	}
	if strings.TrimSpace(in.Content) == "" {
		span.RecordError(domain.ErrValidation)
		return nil, fmt.Errorf("%w: content is required", domain.ErrValidation)
	}

	saved, err := s.repo.SaveMessage(ctx, domain.NewMessage{
		RoomID:   roomID,
		SenderID: senderID,
		Content:  in.Content,
		MediaURL: in.MediaURL,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "save message failed")
		s.log.ErrorContext(ctx, "messages - send message - save failed", "room_id", roomID, "sender_id", senderID, "err", err)
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}

	out := &domain.ChatMessage{
		ID:        saved.ID.String(),
		RoomID:    saved.RoomID,
		Sender:    s.resolveSender(ctx, senderID),
		Content:   saved.Content,
		MediaURL:  saved.MediaURL,
		CreatedAt: saved.CreatedAt,
	}
	frame, err := domain.EncodeFrame(domain.EventMessageReceived, out)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.broadcaster.PublishRoom(ctx, roomID, frame, "")
	span.SetStatus(codes.Ok, "published")
	s.log.InfoContext(ctx, "messages - send message - published", "room_id", roomID, "sender_id", senderID, "message_id", out.ID)
	return out, nil
}

// resolveSender is cache-aside over the user store. A failed lookup falls
// back to an id-only sender and is not cached.
func (s *MessageService) resolveSender(ctx context.Context, userID string) domain.Sender {
	if cached, ok := s.profiles.Get(userID); ok {
		return cached
	}
	sender := domain.Sender{ID: userID}
	if s.users == nil {
		return sender
	}
	u, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if !errors.Is(err, domain.ErrUserNotFound) {
			s.log.WarnContext(ctx, "messages - resolve sender - lookup failed", "user_id", userID, "err", err)
		}
		return sender
	}
	sender.Username = u.Username
	sender.Avatar = u.Avatar
	s.profiles.Add(userID, sender)
	return sender
}

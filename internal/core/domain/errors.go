package domain

import "errors"

var (
	ErrAuthentication    = errors.New("authentication error")
	ErrValidation        = errors.New("invalid payload")
	ErrPersistence       = errors.New("message persistence failed")
	ErrBridgeUnavailable = errors.New("broadcast bridge unavailable")
	ErrClientClosed      = errors.New("client closed")
	ErrSlowConsumer      = errors.New("client send queue full")
	ErrInvalidUserID     = errors.New("invalid user id")
	ErrInvalidRoomID     = errors.New("invalid room id")
	ErrUserNotFound      = errors.New("user not found")
	ErrUnknownEvent      = errors.New("unknown event")
)

const (
	CodeUnauthorized      = "unauthorized"
	CodeInvalidPayload    = "invalid_payload"
	CodePersistenceFailed = "persistence_failed"
	CodeUnknownEvent      = "unknown_event"
	CodeInternal          = "internal"
)

// ErrorCode maps an error onto the code sent in an "error" frame.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrAuthentication):
		return CodeUnauthorized
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInvalidRoomID), errors.Is(err, ErrInvalidUserID):
		return CodeInvalidPayload
	case errors.Is(err, ErrPersistence):
		return CodePersistenceFailed
	case errors.Is(err, ErrUnknownEvent):
		return CodeUnknownEvent
	default:
		return CodeInternal
	}
}

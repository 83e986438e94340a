package logging

import "log/slog"

// Domain identifiers

func User(id string) slog.Attr {
	return slog.String("user_id", id)
}

func Conn(id string) slog.Attr {
	return slog.String("conn_id", id)
}

func Room(id string) slog.Attr {
	return slog.String("room_id", id)
}

func Instance(id string) slog.Attr {
	return slog.String("instance_id", id)
}

// Request / tracing

func TraceID(id string) slog.Attr {
	return slog.String("trace_id", id)
}

func SpanID(id string) slog.Attr {
	return slog.String("span_id", id)
}

// Error handling

func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("err", "")
	}
	return slog.String("err", err.Error())
}

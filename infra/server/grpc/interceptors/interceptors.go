package interceptors

import (
	"context"
	"log/slog"
	"runtime/debug"

	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/logging"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/recovery"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Logger adapts slog to the go-grpc-middleware logging contract.
func Logger(l *slog.Logger) logging.Logger {
	return logging.LoggerFunc(func(ctx context.Context, lvl logging.Level, msg string, fields ...any) {
		l.Log(ctx, slog.Level(lvl), msg, fields...)
	})
}

// Recovery turns a handler panic into codes.Internal and logs the stack.
func Recovery(l *slog.Logger) recovery.Option {
	return recovery.WithRecoveryHandlerContext(func(ctx context.Context, p any) error {
		l.ErrorContext(ctx, "[GRPC] handler panic", "panic", p, "stack", string(debug.Stack()))
		return status.Error(codes.Internal, "internal error")
	})
}

// Unary is the interceptor chain for unary calls: recovery is innermost so
// the logger still records the failed call.
func Unary(l *slog.Logger) []grpc.UnaryServerInterceptor {
	return []grpc.UnaryServerInterceptor{
		logging.UnaryServerInterceptor(Logger(l), logging.WithLogOnEvents(logging.FinishCall)),
		recovery.UnaryServerInterceptor(Recovery(l)),
	}
}

func Stream(l *slog.Logger) []grpc.StreamServerInterceptor {
	return []grpc.StreamServerInterceptor{
		logging.StreamServerInterceptor(Logger(l), logging.WithLogOnEvents(logging.FinishCall)),
		recovery.StreamServerInterceptor(Recovery(l)),
	}
}

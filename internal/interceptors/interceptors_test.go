package interceptors

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/pribylovaa/account-service/internal/pkg/log"
)

// capHandler запоминает последнюю запись вместе с attrs из With(...).
type capHandler struct {
	mu      sync.Mutex
	base    []slog.Attr
	lastMsg string
	lastLvl slog.Level
	attrs   map[string]any
}

func (h *capHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *capHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make(map[string]any, len(h.base)+8)
	for _, a := range h.base {
		out[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		out[a.Key] = a.Value.Any()
		return true
	})

	h.lastMsg = r.Message
	h.lastLvl = r.Level
	h.attrs = out
	return nil
}

func (h *capHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.base = append(h.base, attrs...)
	return h
}

func (h *capHandler) WithGroup(string) slog.Handler { return h }

var healthInfo = &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}

func TestUnaryLogging_PropagatesRequestID_AndLogger(t *testing.T) {
	h := &capHandler{}
	logger := slog.New(h)

	md := metadata.New(map[string]string{requestIDKey: "rid-123"})
	ctx := metadata.NewIncomingContext(context.Background(), md)
	ctx = peer.NewContext(ctx, &peer.Peer{Addr: &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 50051}})

	var inner *slog.Logger
	resp, err := UnaryLogging(logger)(ctx, "req", healthInfo, func(ctx context.Context, _ any) (any, error) {
		inner = log.From(ctx)
		return "ok", nil
	})
	require.NoError(t, err)
	require.Equal(t, "ok", resp)
	require.NotSame(t, slog.Default(), inner)

	require.Equal(t, "grpc_call", h.lastMsg)
	require.Equal(t, slog.LevelInfo, h.lastLvl)
	require.Equal(t, "rid-123", h.attrs["request_id"])
	require.Equal(t, healthInfo.FullMethod, h.attrs["method"])
	require.Equal(t, "127.0.0.1:50051", h.attrs["peer"])
	require.Equal(t, "OK", h.attrs["code"])

	_, ok := h.attrs["dur"].(time.Duration)
	require.True(t, ok)
}

func TestUnaryLogging_GeneratesUUID_AndWarnsOnError(t *testing.T) {
	h := &capHandler{}

	_, err := UnaryLogging(slog.New(h))(context.Background(), "req", healthInfo, func(context.Context, any) (any, error) {
		return nil, status.Error(codes.NotFound, "unknown service")
	})
	require.Error(t, err)

	require.Equal(t, slog.LevelWarn, h.lastLvl)
	require.Equal(t, "NotFound", h.attrs["code"])
	require.Equal(t, "-", h.attrs["peer"])

	rid, _ := h.attrs["request_id"].(string)
	_, parseErr := uuid.Parse(rid)
	require.NoError(t, parseErr)
}

func TestRecover_PanicToInternal(t *testing.T) {
	h := &capHandler{}

	resp, err := Recover(slog.New(h))(context.Background(), "req", healthInfo, func(context.Context, any) (any, error) {
		panic("boom")
	})

	require.Nil(t, resp)
	require.Equal(t, codes.Internal, status.Code(err))
	require.Equal(t, "internal error", status.Convert(err).Message())

	require.Equal(t, slog.LevelError, h.lastLvl)
	require.Equal(t, "panic_recovered", h.lastMsg)
	require.Equal(t, healthInfo.FullMethod, h.attrs["method"])
	require.Equal(t, "boom", h.attrs["panic"])

	stack, _ := h.attrs["stack"].(string)
	require.NotEmpty(t, stack)
}

func TestRecover_NoPanic_NoLogs(t *testing.T) {
	h := &capHandler{}

	resp, err := Recover(slog.New(h))(context.Background(), "req", healthInfo, func(context.Context, any) (any, error) {
		return "ok", nil
	})

	require.NoError(t, err)
	require.Equal(t, "ok", resp)
	require.Empty(t, h.lastMsg)
}

func TestWithTimeout_SetsDeadline(t *testing.T) {
	const d = 40 * time.Millisecond

	start := time.Now()
	_, err := WithTimeout(d)(context.Background(), "req", healthInfo, func(ctx context.Context, _ any) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	require.Equal(t, codes.DeadlineExceeded, status.Code(err))
	require.GreaterOrEqual(t, time.Since(start), d)
}

func TestWithTimeout_LogsExpiryWithMethod(t *testing.T) {
	h := &capHandler{}
	ctx := log.Into(context.Background(), slog.New(h))

	_, err := WithTimeout(10*time.Millisecond)(ctx, "req", healthInfo, func(ctx context.Context, _ any) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	require.Equal(t, codes.DeadlineExceeded, status.Code(err))
	require.Equal(t, "deadline_exceeded", h.lastMsg)
	require.Equal(t, healthInfo.FullMethod, h.attrs["method"])
}

func TestWithTimeout_KeepsStatusErrors(t *testing.T) {
	_, err := WithTimeout(10*time.Millisecond)(context.Background(), "req", healthInfo, func(ctx context.Context, _ any) (any, error) {
		<-ctx.Done()
		return nil, status.Error(codes.Unavailable, "busy")
	})

	require.Equal(t, codes.Unavailable, status.Code(err))
}

func TestWithTimeout_KeepsExistingDeadline(t *testing.T) {
	parent, cancel := context.WithTimeout(context.Background(), 25*time.Millisecond)
	defer cancel()
	pdl, _ := parent.Deadline()

	var childDL time.Time
	_, err := WithTimeout(time.Second)(parent, "req", healthInfo, func(ctx context.Context, _ any) (any, error) {
		childDL, _ = ctx.Deadline()
		return "ok", nil
	})

	require.NoError(t, err)
	require.Equal(t, pdl, childDL)
}

func TestWithTimeout_NonPositive_NoDeadline(t *testing.T) {
	var has bool
	_, err := WithTimeout(0)(context.Background(), "req", healthInfo, func(ctx context.Context, _ any) (any, error) {
		_, has = ctx.Deadline()
		return nil, nil
	})

	require.NoError(t, err)
	require.False(t, has)
}

package log

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

const (
	metadataKeyRequestID = "x-request-id"
	healthServicePrefix  = "/grpc.health.v1.Health/"
)

// UnaryServerInterceptor puts a request-scoped logger in the handler
// context and logs each completed call.
func UnaryServerInterceptor(logger zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		ctx, done := startCall(ctx, logger, info.FullMethod)
		resp, err := handler(ctx, req)
		done(err, "unary call completed")
		return resp, err
	}
}

// StreamServerInterceptor is the streaming counterpart. Health Watch
// streams live as long as the probe, so their completion is logged at
// debug level like every other health call.
func StreamServerInterceptor(logger zerolog.Logger) grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, done := startCall(ss.Context(), logger, info.FullMethod)
		err := handler(srv, &loggedStream{ServerStream: ss, ctx: ctx})
		done(err, "stream call completed")
		return err
	}
}

func startCall(ctx context.Context, logger zerolog.Logger, method string) (context.Context, func(error, string)) {
	start := time.Now()

	lc := logger.With().
		Str(FieldRequestID, requestIDFromMD(ctx)).
		Str(FieldGRPCMethod, method)
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		lc = lc.Str(FieldClientIP, p.Addr.String())
	}
	child := lc.Logger()

	done := func(err error, msg string) {
		evt := child.Info()
		if strings.HasPrefix(method, healthServicePrefix) {
			evt = child.Debug()
		}
		evt.Str(FieldGRPCCode, status.Code(err).String()).
			Float64(FieldLatency, float64(time.Since(start).Milliseconds())).
			Err(err).
			Msg(msg)
	}
	return WithLogger(ctx, child), done
}

type loggedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *loggedStream) Context() context.Context {
	return s.ctx
}

func requestIDFromMD(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if vals := md.Get(metadataKeyRequestID); len(vals) > 0 && vals[0] != "" {
			return vals[0]
		}
	}
	return uuid.New().String()
}

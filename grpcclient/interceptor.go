package grpcclient

import (
	"context"
	"net/http"
	"strings"

	"github.com/AmmannChristian/go-csrfx/csrfclient"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// Interceptor attaches the CSRF token of a Manager to outgoing gRPC calls.
//
// gRPC calls are carried over POST, so every method is treated as state-changing
// unless it is listed with WithSafeMethods. The token travels as metadata under the
// lower-cased header name; a rotated token in the response header metadata is observed.
type Interceptor struct {
	tm   *csrfclient.Manager
	key  string
	safe map[string]struct{}
}

// InterceptorOption configures an Interceptor.
type InterceptorOption func(*Interceptor)

// WithSafeMethods marks full method names (e.g. "/pkg.Service/List") as read-only.
// Safe methods are sent without a token and never retried.
func WithSafeMethods(methods ...string) InterceptorOption {
	return func(i *Interceptor) {
		for _, m := range methods {
			i.safe[m] = struct{}{}
		}
	}
}

// NewInterceptor creates an Interceptor backed by tm.
func NewInterceptor(tm *csrfclient.Manager, opts ...InterceptorOption) *Interceptor {
	i := &Interceptor{
		tm:   tm,
		key:  strings.ToLower(tm.HeaderName()),
		safe: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Unary returns a unary client interceptor.
//
// A call rejected with PermissionDenied and a CSRF error code is resent once with a
// freshly fetched token, subject to the Manager's retry policy. Any other error resets
// the retry budget and is returned untouched.
//
// Usage:
//
//	conn, err := grpc.NewClient(
//	    "server:9090",
//	    grpc.WithUnaryInterceptor(interceptor.Unary()),
//	)
func (i *Interceptor) Unary() grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req, reply interface{},
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		err := i.invoke(i.attach(ctx, method), method, req, reply, cc, invoker, opts)
		if err == nil {
			return nil
		}

		if !IsCSRFStatus(err) {
			i.tm.ResetRetryBudget()
			return err
		}
		if i.isSafe(method) {
			return err
		}

		retryCtx, token, ok := i.tm.BeginRetry(ctx)
		if !ok {
			return err
		}
		retryCtx = metadata.AppendToOutgoingContext(retryCtx, i.key, token)

		err = i.invoke(retryCtx, method, req, reply, cc, invoker, opts)
		if code, failed := CSRFStatusCode(err); failed {
			i.tm.EndRetry(false)
			i.tm.Logger().Errorf("grpcclient: %s rejected again after token refresh: %s", method, code)
			return err
		}
		if err != nil {
			i.tm.ResetRetryBudget()
		}
		i.tm.EndRetry(true)
		return err
	}
}

// Stream returns a stream client interceptor. Streams carry the token but are never
// retried, since messages already sent cannot be replayed.
//
// Usage:
//
//	conn, err := grpc.NewClient(
//	    "server:9090",
//	    grpc.WithStreamInterceptor(interceptor.Stream()),
//	)
func (i *Interceptor) Stream() grpc.StreamClientInterceptor {
	return func(
		ctx context.Context,
		desc *grpc.StreamDesc,
		cc *grpc.ClientConn,
		method string,
		streamer grpc.Streamer,
		opts ...grpc.CallOption,
	) (grpc.ClientStream, error) {
		stream, err := streamer(i.attach(ctx, method), desc, cc, method, opts...)
		if err != nil {
			return nil, err
		}
		return &observedStream{ClientStream: stream, i: i}, nil
	}
}

func (i *Interceptor) invoke(
	ctx context.Context,
	method string,
	req, reply interface{},
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts []grpc.CallOption,
) error {
	var header metadata.MD
	callOpts := append(opts[:len(opts):len(opts)], grpc.Header(&header))
	err := invoker(ctx, method, req, reply, cc, callOpts...)
	i.observe(header)
	return err
}

func (i *Interceptor) attach(ctx context.Context, method string) context.Context {
	verb := http.MethodPost
	if i.isSafe(method) {
		verb = http.MethodGet
	}
	i.tm.Attach(ctx, verb, func(_, value string) {
		ctx = metadata.AppendToOutgoingContext(ctx, i.key, value)
	})
	return ctx
}

func (i *Interceptor) observe(md metadata.MD) {
	if values := md.Get(i.key); len(values) > 0 {
		i.tm.ObserveToken(values[len(values)-1])
	}
}

func (i *Interceptor) isSafe(method string) bool {
	_, ok := i.safe[method]
	return ok
}

// observedStream picks up a rotated token once the server sends its header metadata.
type observedStream struct {
	grpc.ClientStream
	i *Interceptor
}

func (s *observedStream) Header() (metadata.MD, error) {
	md, err := s.ClientStream.Header()
	if err == nil {
		s.i.observe(md)
	}
	return md, err
}

func (s *observedStream) RecvMsg(m interface{}) error {
	err := s.ClientStream.RecvMsg(m)
	if err == nil {
		if md, hErr := s.ClientStream.Header(); hErr == nil {
			s.i.observe(md)
		}
	}
	return err
}

// CSRFStatusCode reports whether err is a gRPC PermissionDenied status caused by a CSRF
// check, and returns the CSRF code. The code is taken from an ErrorInfo detail's reason
// or, failing that, from the status message.
func CSRFStatusCode(err error) (string, bool) {
	if err == nil {
		return "", false
	}
	st, ok := status.FromError(err)
	if !ok || st.Code() != codes.PermissionDenied {
		return "", false
	}

	for _, detail := range st.Details() {
		if info, ok := detail.(*errdetails.ErrorInfo); ok && csrfclient.IsCSRFCode(info.GetReason()) {
			return info.GetReason(), true
		}
	}

	for _, field := range strings.FieldsFunc(st.Message(), func(r rune) bool {
		return r == ':' || r == ' ' || r == ','
	}) {
		if csrfclient.IsCSRFCode(field) {
			return field, true
		}
	}
	return "", false
}

// IsCSRFStatus reports whether err is a CSRF rejection. See CSRFStatusCode.
func IsCSRFStatus(err error) bool {
	_, ok := CSRFStatusCode(err)
	return ok
}

// Package grpcclient carries csrfclient tokens over gRPC.
//
// Interceptor adds the token of a csrfclient.Manager to outgoing metadata, observes
// rotated tokens in response headers and retries a unary call once when the server
// rejects it with PermissionDenied and a CSRF error code. Builder creates a secure
// *grpc.ClientConn with the interceptors attached.
//
// # Features
//
//   - Unary and stream client interceptors backed by one shared Manager
//   - Read-only methods exempted with WithSafeMethods
//   - CSRF rejections recognised from an ErrorInfo reason or the status message
//   - Secure-by-default TLS; optional custom CA and mTLS
//   - Additional dial options via WithDialOptions
//
// # Quick Start
//
//	conn, err := grpcclient.NewBuilder().
//	    WithAddress("server.example.com:9090").
//	    WithTokenManager(tm).
//	    WithSafeMethods("/orders.v1.OrderService/ListOrders").
//	    WithTLS("/path/to/ca.crt", "", "", "server.example.com").
//	    Build()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer conn.Close()
//
//	client := pb.NewOrderServiceClient(conn)
//
// # TLS Behavior
//
// TLS is enabled by default with system CAs and TLS 1.2 minimum. WithTLS allows supplying a custom
// root CA and optional client cert/key for mTLS; both cert and key must be provided together.
package grpcclient

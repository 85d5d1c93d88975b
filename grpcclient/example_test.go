package grpcclient_test

import (
	"fmt"
	"log"

	"github.com/AmmannChristian/go-csrfx/csrfclient"
	"github.com/AmmannChristian/go-csrfx/grpcclient"
	"google.golang.org/grpc"
)

// Example demonstrates basic gRPC client builder usage.
func Example() {
	conn, err := grpcclient.NewBuilder().
		WithAddress("server.example.com:9090").
		WithCSRF(csrfclient.DefaultConfig("https://server.example.com")).
		WithSafeMethods("/orders.v1.OrderService/ListOrders").
		Build()
	if err != nil {
		log.Fatal(err)
	}
	defer conn.Close()

	fmt.Println("gRPC connection established")
	// Output: gRPC connection established
}

// ExampleNewInterceptor demonstrates sharing one Manager with a hand-built connection.
func ExampleNewInterceptor() {
	tm, err := csrfclient.New(csrfclient.DefaultConfig("https://server.example.com"))
	if err != nil {
		log.Fatal(err)
	}

	interceptor := grpcclient.NewInterceptor(tm)
	opts := []grpc.DialOption{
		grpc.WithUnaryInterceptor(interceptor.Unary()),
		grpc.WithStreamInterceptor(interceptor.Stream()),
	}

	fmt.Println(len(opts), "interceptors")
	// Output: 2 interceptors
}

// ExampleBuilder_WithTLS demonstrates TLS configuration.
func ExampleBuilder_WithTLS() {
	conn, err := grpcclient.NewBuilder().
		WithAddress("secure.example.com:9090").
		WithTLS(
			"/path/to/ca.crt",     // CA certificate
			"/path/to/client.crt", // Client certificate (optional)
			"/path/to/client.key", // Client key (optional)
			"secure.example.com",  // Server name override (optional)
		).
		Build()
	if err != nil {
		// In this example, files don't exist, so we expect an error
		fmt.Println("TLS configuration attempted")
		return
	}
	defer conn.Close()

	fmt.Println("TLS enabled")
	// Output: TLS configuration attempted
}

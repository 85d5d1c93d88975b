package csrfclient_test

import (
	"fmt"
	"log"

	"github.com/AmmannChristian/go-csrfx/csrfclient"
)

// Example demonstrates creating a Manager with the default settings.
func Example() {
	tm, err := csrfclient.New(csrfclient.DefaultConfig("https://app.example.com"))
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(tm.TokenURL())
	fmt.Println(tm.HeaderName())
	// Output:
	// https://app.example.com/api/v1/auth/csrf-token
	// X-CSRF-Token
}

// ExampleIsStateChanging shows which verbs receive the token.
func ExampleIsStateChanging() {
	for _, verb := range []string{"GET", "POST", "PATCH", "OPTIONS"} {
		fmt.Printf("%s %t\n", verb, csrfclient.IsStateChanging(verb))
	}
	// Output:
	// GET false
	// POST true
	// PATCH true
	// OPTIONS false
}

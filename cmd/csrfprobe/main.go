// Command csrfprobe fetches CSRF tokens and sends protected requests against a deployment.
//
// Usage:
//
//	csrfprobe --origin https://app.example.com token
//	csrfprobe --origin https://app.example.com send POST /api/v1/jobs --data '{"name":"nightly"}'
//
// Every flag can also be set through the matching CSRF_* environment variable.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd(&probe{}).Execute(); err != nil {
		os.Exit(1)
	}
}

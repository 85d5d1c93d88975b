package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/AmmannChristian/go-csrfx/csrfclient"
)

// Fetcher is a drop-in request function for code that builds requests from a method and URL
// instead of holding an *http.Client. Requests run through the TokenManager protocol.
type Fetcher struct {
	client *http.Client
	tm     *csrfclient.Manager
}

// NewFetcher creates a Fetcher sending through client.
// client must not already use a Transport bound to tm, or the token would be handled twice.
// A nil client gets a plain client that shares the Manager's cookie jar.
func NewFetcher(tm *csrfclient.Manager, client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{}
		if tm != nil {
			client.Jar = tm.Jar()
		}
	}
	return &Fetcher{client: client, tm: tm}
}

// Fetch sends a request with the given method, URL, body and extra headers.
// body may be nil; header entries are added to the request.
func (f *Fetcher) Fetch(ctx context.Context, method, url string, body io.Reader, header http.Header) (*http.Response, error) {
	if f.tm == nil {
		return nil, errors.New("httpclient: TokenManager is nil")
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("httpclient: build request: %w", err)
	}
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	return f.tm.Do(req, f.client.Do)
}

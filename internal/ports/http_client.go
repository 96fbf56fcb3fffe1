package ports

import "net/http"

// HTTPClient performs a single HTTP round trip. The connectivity prober
// takes one so tests can swap in a fake; *http.Client satisfies it.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

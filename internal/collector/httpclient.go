package collector

import "net/http"

// HTTPClient describes an HTTP client.
//
//go:generate mockgen -destination=mocks/http_client.go -package=mocks -source=httpclient.go HTTPClient
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

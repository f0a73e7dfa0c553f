// Package httputil provides shared HTTP client utilities.
package httputil

import (
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

const defaultRetryCount = 2

// NewDefaultRestyClient returns a resty client with the timeouts used by every outbound
// integration. With retry set, transport failures and 5xx responses are retried; leave it
// off for requests that are not idempotent.
func NewDefaultRestyClient(timeout time.Duration, retry bool) *resty.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", "whatsapp-helpdesk/1.0").
		OnError(func(req *resty.Request, err error) {
			log.Warn().Err(err).Str("url", req.URL).Msg("HTTP request failed")
		})
	if !retry {
		return client.SetRetryCount(0)
	}
	return client.
		SetRetryCount(defaultRetryCount).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			// never 4xx
			if err != nil {
				return true
			}
			return r.StatusCode() >= http.StatusInternalServerError
		})
}

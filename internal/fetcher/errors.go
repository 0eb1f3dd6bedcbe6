package fetcher

import (
	"encoding/json"
	"errors"
	"net/url"
)

// redactKey drops the query string (which carries the API key) from URL
// errors so it never reaches logs or results.
func redactKey(err error) error {
	var ue *url.Error
	if !errors.As(err, &ue) {
		return err
	}
	if u, perr := url.Parse(ue.URL); perr == nil {
		u.RawQuery = ""
		return &url.Error{Op: ue.Op, URL: u.String(), Err: ue.Err}
	}
	return ue.Err
}

// isErrorStatus reports whether a 2xx body still carries status "error".
func isErrorStatus(body []byte) bool {
	var probe struct {
		Status string `json:"status"`
	}
	return json.Unmarshal(body, &probe) == nil && probe.Status == "error"
}

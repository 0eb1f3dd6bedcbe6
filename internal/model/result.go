package model

import "time"

// FailureReason classifies why a fetch run ended without writes.
type FailureReason string

const (
	ReasonNone      FailureReason = ""
	ReasonTransport FailureReason = "transport_error"
	ReasonUpstream  FailureReason = "upstream_error"
	ReasonParse     FailureReason = "parse_error"
	ReasonSettings  FailureReason = "settings_error"
)

// FetchResult describes one fetch run. Counts are advisory.
type FetchResult struct {
	OK        bool          `json:"ok"`
	Reason    FailureReason `json:"reason,omitempty"`
	Error     string        `json:"error,omitempty"`
	Inserted  int           `json:"inserted"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// Failure builds a non-ok result for the given reason.
func Failure(reason FailureReason, err error) FetchResult {
	r := FetchResult{Reason: reason}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

package delivery

import "time"

// Status is the terminal state of one delivery attempt.
type Status string

const (
	StatusDelivered Status = "delivered"
	StatusAbandoned Status = "abandoned"
)

// Reason explains why an attempt was abandoned.
type Reason string

const (
	// ReasonConfigMissing means server_url or api_key was empty; no request was made.
	ReasonConfigMissing Reason = "config_missing"
	// ReasonNetworkError means the request failed before a response was read.
	ReasonNetworkError Reason = "network_error"
)

// Outcome is the result of Agent.Deliver. Every attempt ends in exactly one
// Outcome and none is ever retried.
type Outcome struct {
	Status Status
	Reason Reason
	// At is when the response was received; zero unless delivered.
	At time.Time
	// StatusCode is the webhook's HTTP status; zero unless delivered.
	StatusCode int
	Err        error
}

func delivered(at time.Time, statusCode int) Outcome {
	return Outcome{Status: StatusDelivered, At: at, StatusCode: statusCode}
}

func abandoned(reason Reason, err error) Outcome {
	return Outcome{Status: StatusAbandoned, Reason: reason, Err: err}
}

// Delivered reports whether the webhook returned any response.
func (o Outcome) Delivered() bool {
	return o.Status == StatusDelivered
}

// ServerError reports a delivered attempt whose status was not 2xx.
func (o Outcome) ServerError() bool {
	return o.Delivered() && (o.StatusCode < 200 || o.StatusCode > 299)
}

// Label is a compact outcome name for logs and metrics.
func (o Outcome) Label() string {
	if o.Status == StatusAbandoned {
		return string(o.Status) + "_" + string(o.Reason)
	}
	return string(o.Status)
}

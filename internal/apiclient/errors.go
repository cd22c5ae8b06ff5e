package apiclient

import "fmt"

// ProtocolError reports a response that arrived but cannot be used: an unexpected
// status, an undecodable body or missing required fields.
type ProtocolError struct {
	StatusCode int
	Msg        string
	Err        error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// LookupNodeError is returned when no valid lookup response arrived within the
// lookup timeout.
type LookupNodeError struct {
	Err error
}

func (e *LookupNodeError) Error() string {
	return "could not look up node info, check logs for details: " + e.Err.Error()
}

func (e *LookupNodeError) Unwrap() error {
	return e.Err
}

// HeartbeatError wraps every failure of a heartbeat exchange.
type HeartbeatError struct {
	Err error
}

func (e *HeartbeatError) Error() string {
	return "heartbeat: " + e.Err.Error()
}

func (e *HeartbeatError) Unwrap() error {
	return e.Err
}

package mcd

// DecodeError reports a log that does not match its signature schema.
type DecodeError struct {
	Event  string
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	msg := "decode " + e.Event + ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func decodeErr(event Event, reason string, err error) *DecodeError {
	return &DecodeError{Event: event.Name, Reason: reason, Err: err}
}

package airthings

import "fmt"

// Device is one Airthings device as reported by the consumer API,
// with its latest samples flattened into an ordered reading list.
type Device struct {
	SerialNumber string
	Name         string
	Type         string
	Sensors      []SensorReading
}

type SensorReading struct {
	Type  string
	Value float64
}

// Error is the domain error raised by the API client. Callers translate
// it into their own "update failed" signal.
type Error struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("airthings: %s: status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("airthings: %s: %s", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

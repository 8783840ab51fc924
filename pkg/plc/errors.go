package plc

import (
	"errors"
	"fmt"
)

var (
	ErrAddressOutOfRange = errors.New("address out of range")
	ErrInvalidRange      = errors.New("invalid count")
	ErrShortResponse     = errors.New("plc returned fewer values than requested")
	ErrUnsupportedArea   = errors.New("operation not supported by area")
)

// CommunicationError reports a failed exchange with the PLC: the port could not be opened, the
// transaction failed or it timed out.
type CommunicationError struct {
	Op      string
	Address string
	Err     error
}

func (e *CommunicationError) Error() string {
	if len(e.Address) == 0 {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Address, e.Err)
}

func (e *CommunicationError) Unwrap() error {
	return e.Err
}

func IsCommunicationError(err error) bool {
	var ce *CommunicationError
	return errors.As(err, &ce)
}

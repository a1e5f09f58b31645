package domain

import "errors"

// Error kinds of a call attempt.
var (
	ErrDevice         = errors.New("device unavailable")
	ErrJoin           = errors.New("join failed")
	ErrInvalidInput   = errors.New("invalid input")
	ErrTransportFault = errors.New("transport fault")
)

var (
	ErrRoomIDEmpty        = errors.New("room id empty")
	ErrRoomIDFormat       = errors.New("use 3-16 letters, numbers, hyphen, or underscore")
	ErrDisplayNameEmpty   = errors.New("display name empty")
	ErrDisplayNameTooLong = errors.New("display name too long")
)

// CallError tags a cause with one of the error kinds above. errors.Is
// matches both the kind and the cause.
type CallError struct {
	Kind error
	Op   string
	Err  error
}

func (e *CallError) Error() string {
	msg := e.Kind.Error()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CallError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func DeviceError(op string, err error) error    { return classify(ErrDevice, op, err) }
func JoinError(op string, err error) error      { return classify(ErrJoin, op, err) }
func InvalidInput(op string, err error) error   { return classify(ErrInvalidInput, op, err) }
func TransportFault(op string, err error) error { return classify(ErrTransportFault, op, err) }

// classify leaves errors that already carry a kind alone.
func classify(kind error, op string, err error) error {
	for _, k := range []error{ErrDevice, ErrJoin, ErrInvalidInput, ErrTransportFault} {
		if err != nil && errors.Is(err, k) {
			return err
		}
	}
	return &CallError{Kind: kind, Op: op, Err: err}
}

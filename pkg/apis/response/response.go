package response

import (
	goerrors "errors"
	"fmt"
	"strings"
	"sync"
)

type responseError struct {
	Code    ErrCode `json:"code"`
	Message string  `json:"message"`
	Err     error   `json:"-"`
}

func (re *responseError) Error() string {
	if re == nil {
		return ""
	}
	if re.Err != nil {
		return re.Message + ": " + re.Err.Error()
	}
	return re.Message
}

func (re *responseError) GetCode() ErrCode {
	if re == nil {
		return 0
	}
	return re.Code
}

func (re *responseError) Unwrap() error {
	return re.Err
}

// Failure is the body of every unsuccessful API call.
type Failure struct {
	Success   bool    `json:"success"`
	Code      ErrCode `json:"code"`
	Error     string  `json:"error"`
	Connected bool    `json:"connected"`
}

// NewFailure renders err with the current PLC connection state. Errors outside the code table are
// reported as internal errors.
func NewFailure(err error, connected bool) *Failure {
	f := &Failure{Connected: connected, Code: ErrCodeInternal}
	var re *responseError
	var me *MultiError
	switch {
	case goerrors.As(err, &re):
		f.Code = re.GetCode()
	case goerrors.As(err, &me) && me.Len() > 0:
		if goerrors.As(me.Errors()[0], &re) {
			f.Code = re.GetCode()
		}
	}
	if err != nil {
		f.Error = err.Error()
	}
	return f
}

// MultiError contains multiple errors and implements the error interface. Its
// zero value is ready to use. All its methods are goroutine safe.
type MultiError struct {
	mtx    sync.Mutex
	errors []error
}

// Add adds an error to the MultiError.
func (e *MultiError) Add(err ...error) {
	e.mtx.Lock()
	defer e.mtx.Unlock()

	e.errors = append(e.errors, err...)
}

// Len returns the number of errors added to the MultiError.
func (e *MultiError) Len() int {
	if e == nil {
		return 0
	}
	e.mtx.Lock()
	defer e.mtx.Unlock()

	return len(e.errors)
}

// Errors returns the errors added to the MuliError. The returned slice is a
// copy of the internal slice of errors.
func (e *MultiError) Errors() []error {
	e.mtx.Lock()
	defer e.mtx.Unlock()

	return append(make([]error, 0, len(e.errors)), e.errors...)
}

func (e *MultiError) Error() string {
	e.mtx.Lock()
	defer e.mtx.Unlock()

	es := make([]string, 0, len(e.errors))
	for _, err := range e.errors {
		es = append(es, err.Error())
	}
	return strings.Join(es, "; ")
}

func generateError(code ErrCode, s ...interface{}) *responseError {
	return &responseError{
		Code:    code,
		Message: fmt.Sprintf(errors[code], s...),
	}
}

func generateErrorWrapper(code ErrCode, err error, s ...interface{}) *responseError {
	return &responseError{
		Code:    code,
		Message: fmt.Sprintf(errors[code], s...),
		Err:     err,
	}
}

package response

var errors = map[ErrCode]string{
	ErrCodeMalformedJSON:    "The JSON you provided was not well-formed or did not validate against our published format.",
	ErrCodeRequestBody:      "Request body error: %s",
	ErrCodeInvalidAddress:   "Invalid address %s",
	ErrCodeValueOutOfRange:  "Value must be %d-%d",
	ErrCodeRangeTooLarge:    "Maximum %d %s per request",
	ErrCodeCommunication:    "Failed to %s %s",
	ErrCodeConnect:          "Failed to connect to PLC",
	ErrCodeEndpointNotFound: "Endpoint not found",
	ErrCodeInternal:         "Internal server error",
	ErrCodeInvalidParameter: "Invalid %s %q",
}

// !!! IMPORTANT PLEASE READ FIRST !!!
// You SHOULD add new code at the end of enum firstly.

var ErrMalformedJSON = &responseError{
	Code:    ErrCodeMalformedJSON,
	Message: errors[ErrCodeMalformedJSON],
}

var ErrEndpointNotFound = &responseError{
	Code:    ErrCodeEndpointNotFound,
	Message: errors[ErrCodeEndpointNotFound],
}

func ErrRequestBody(reason string) *responseError {
	return generateError(ErrCodeRequestBody, reason)
}

func ErrInvalidAddress(address string) *responseError {
	return generateError(ErrCodeInvalidAddress, address)
}

func ErrValueOutOfRange(min, max int) *responseError {
	return generateError(ErrCodeValueOutOfRange, min, max)
}

func ErrRangeTooLarge(max int, unit string) *responseError {
	return generateError(ErrCodeRangeTooLarge, max, unit)
}

func ErrCommunication(op string, address string, err error) *responseError {
	return generateErrorWrapper(ErrCodeCommunication, err, op, address)
}

func ErrConnect(err error) *responseError {
	return generateErrorWrapper(ErrCodeConnect, err)
}

func ErrInternal(err error) *responseError {
	return generateErrorWrapper(ErrCodeInternal, err)
}

func ErrInvalidParameter(name string, value string) *responseError {
	return generateError(ErrCodeInvalidParameter, name, value)
}

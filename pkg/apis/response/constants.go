package response

type ErrCode int

const (
	_                       ErrCode = 10000 + iota
	ErrCodeMalformedJSON            // 10001
	ErrCodeRequestBody              // 10002
	ErrCodeInvalidAddress           // 10003
	ErrCodeValueOutOfRange          // 10004
	ErrCodeRangeTooLarge            // 10005
	ErrCodeCommunication            // 10006
	ErrCodeConnect                  // 10007
	ErrCodeEndpointNotFound         // 10008
	ErrCodeInternal                 // 10009
	ErrCodeInvalidParameter         // 10010
)

// !!! IMPORTANT PLEASE READ FIRST !!!
// You SHOULD add new code at the end, and append comment of number
// Meanwhile, the corresponding error message SHOULD be appended in response.errors
// The order MUST be consistent between them

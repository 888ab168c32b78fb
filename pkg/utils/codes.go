package utils

// ResponseCode business response code
type ResponseCode int

const (
	// CodeSuccess success
	CodeSuccess ResponseCode = 0

	// Parameter and auth errors (1xxx)
	CodeInvalidParam ResponseCode = 1001
	CodeUnauthorized ResponseCode = 1002
	CodeForbidden    ResponseCode = 1003
	CodeRateLimit    ResponseCode = 1004

	// User errors (2xxx)
	CodeUserNotFound  ResponseCode = 2001
	CodeUserExists    ResponseCode = 2002
	CodeWrongPassword ResponseCode = 2003

	// Order errors (3xxx)
	CodeOrderNotFound ResponseCode = 3001
	CodeOrderExists   ResponseCode = 3002
	CodeItemNotFound  ResponseCode = 3003

	// Notification errors (4xxx)
	CodeTokenRejected ResponseCode = 4001
	CodeDispatchError ResponseCode = 4002

	// System errors (5xxx)
	CodeInternalError ResponseCode = 5000
	CodeDatabaseError ResponseCode = 5001
	CodeRedisError    ResponseCode = 5002
	CodeConfigError   ResponseCode = 5003
)

package response

// APIResponseCode is the machine-readable result code carried in every
// response envelope, independent of the HTTP status.
type APIResponseCode int

const (
	APIResponseCodeOK          APIResponseCode = 0
	APIResponseCodeBadRequest  APIResponseCode = 40000
	APIResponseCodeAuth        APIResponseCode = 40100
	APIResponseCodeNotFound    APIResponseCode = 40400
	APIResponseCodeError       APIResponseCode = 50000
	APIResponseCodeUnavailable APIResponseCode = 50300
)

var codeToMsg = map[APIResponseCode]string{
	APIResponseCodeOK:          "ok",
	APIResponseCodeBadRequest:  "bad request",
	APIResponseCodeAuth:        "signature verification failed",
	APIResponseCodeNotFound:    "not found",
	APIResponseCodeError:       "unexpected error",
	APIResponseCodeUnavailable: "service unavailable",
}

// APIResponse is the generic response envelope used by HTTP APIs.
// Use OKT / ErrorT helpers to construct instances.
type APIResponse[T any] struct {
	Code    APIResponseCode `json:"code"`
	Message string          `json:"message"`
	Data    T               `json:"data"`
}

// OKT returns a successful response with data.
func OKT[T any](data T) *APIResponse[T] {
	return &APIResponse[T]{Code: APIResponseCodeOK, Message: codeToMsg[APIResponseCodeOK], Data: data}
}

// ErrorT returns an error response with message and optional data.
func ErrorT[T any](code APIResponseCode, data T) *APIResponse[T] {
	return &APIResponse[T]{Code: code, Message: codeToMsg[code], Data: data}
}

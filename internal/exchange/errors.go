package exchange

import (
	"errors"
	"fmt"
)

// Коды ошибок площадки, которые движок различает
const (
	codeParamError    = 10001
	codeClockDrift    = 10002 // timestamp вне recv_window
	codeInvalidKey    = 10003
	codeInvalidSign   = 10004
	codeNoPermission  = 10005
	codeRateLimit     = 10006
	codeServerBusy    = 10016
	codeIPRateLimit   = 10018
	codeKeyExpired    = 33004
)

// APIError представляет ошибку уровня API площадки: ненулевой retCode
// в конверте ответа.
type APIError struct {
	Code       int
	Message    string
	HTTPStatus int
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("exchange api %s: code=%d %s", e.Endpoint, e.Code, e.Message)
}

// Temporary сообщает, имеет ли смысл повторить запрос. Используется
// retry-обвязкой пула аккаунтов.
func (e *APIError) Temporary() bool {
	switch e.Code {
	case codeRateLimit, codeIPRateLimit, codeServerBusy:
		return true
	}
	return e.HTTPStatus >= 500
}

// IsClockDrift сообщает, отклонила ли площадка подпись из-за рассинхрона
// часов. Один такой ответ запускает пересинхронизацию и один повтор.
func IsClockDrift(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == codeClockDrift
}

// IsAuthError сообщает, что ключи аккаунта невалидны или истекли.
// Повторять бесполезно, аккаунт деактивируется.
func IsAuthError(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Code {
	case codeInvalidKey, codeInvalidSign, codeNoPermission, codeKeyExpired:
		return true
	}
	return false
}

// IsRateLimited сообщает, что площадка притормозила аккаунт или IP.
func IsRateLimited(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == codeRateLimit || apiErr.Code == codeIPRateLimit
}

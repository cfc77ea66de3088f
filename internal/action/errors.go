package action

import "errors"

// Ошибки выполнения actions.
var (
	// ErrUnknownActionType — нет executor'а для данного типа action.
	ErrUnknownActionType = errors.New("unknown action type")

	// ErrMissingPayload — action не содержит payload своего типа.
	ErrMissingPayload = errors.New("action payload is missing")

	// ErrHTTPRequest — HTTP-запрос завершился транспортной ошибкой.
	ErrHTTPRequest = errors.New("http request failed")
)

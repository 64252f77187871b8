package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
)

var (
	ErrTurnInProgress = errors.New("a chat turn is already in progress for this session")
	ErrEmptyResponse  = errors.New("model returned no usable text")
	ErrAPIKeyMissing  = errors.New("model API key is not configured")
	ErrChatNotFound   = errors.New("chat not found")
)

type ErrorKind int

const (
	// BackendUnavailable means the model backend could not be reached.
	BackendUnavailable ErrorKind = iota + 1
	// BackendError means the backend answered with a failure, including
	// rejected or missing credentials.
	BackendError
)

func (k ErrorKind) String() string {
	switch k {
	case BackendUnavailable:
		return "backend_unavailable"
	case BackendError:
		return "backend_error"
	default:
		return "unknown"
	}
}

// ChatError is returned by the pipeline when the single upstream request fails.
type ChatError struct {
	Kind  ErrorKind
	Model string
	Err   error
}

func (e *ChatError) Error() string {
	return fmt.Sprintf("chat %s (model %s): %v", e.Kind, e.Model, e.Err)
}

func (e *ChatError) Unwrap() error {
	return e.Err
}

// classifyBackendError sorts a generator failure into transport versus
// backend errors.
func classifyBackendError(err error) ErrorKind {
	if errors.Is(err, ErrAPIKeyMissing) {
		return BackendError
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return BackendUnavailable
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return BackendUnavailable
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return BackendUnavailable
	}
	return BackendError
}

const (
	userFacingConnectionError = "Простите, возникла ошибка связи. Попробуйте еще раз."
	userFacingBackendError    = "Произошла ошибка соединения с сервером или неверный API ключ."
)

// UserFacingError returns the localized text shown in place of a model reply.
func UserFacingError(err error) string {
	var chatErr *ChatError
	if errors.As(err, &chatErr) && chatErr.Kind == BackendError {
		return userFacingBackendError
	}
	return userFacingConnectionError
}

package domain

import (
	"errors"
	"fmt"
)

// 后端调用失败的分类
var (
	ErrNetworkUnavailable = errors.New("backend unavailable")
	ErrMalformedResponse  = errors.New("malformed backend response")
)

var (
	ErrStepNotFound = errors.New("step not found")
	ErrSubmitBusy   = errors.New("another command is still in progress")
)

// BackendRejectedError 后端返回了非 2xx 状态码
type BackendRejectedError struct {
	Backend string
	Status  int
	Reason  string
}

func (e *BackendRejectedError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s backend rejected request: status=%d", e.Backend, e.Status)
	}
	return fmt.Sprintf("%s backend rejected request: status=%d, reason=%s", e.Backend, e.Status, e.Reason)
}

// FailureKind 面向 UI 的失败类型
type FailureKind string

const (
	FailureNone               FailureKind = ""
	FailureNetworkUnavailable FailureKind = "network_unavailable"
	FailureBackendRejected    FailureKind = "backend_rejected"
	FailureMalformedResponse  FailureKind = "malformed_response"
	FailureBusy               FailureKind = "busy"
	FailureUnknown            FailureKind = "unknown"
)

// ClassifyError 将错误归类
func ClassifyError(err error) FailureKind {
	if err == nil {
		return FailureNone
	}
	var rejected *BackendRejectedError
	switch {
	case errors.As(err, &rejected):
		return FailureBackendRejected
	case errors.Is(err, ErrNetworkUnavailable):
		return FailureNetworkUnavailable
	case errors.Is(err, ErrMalformedResponse):
		return FailureMalformedResponse
	case errors.Is(err, ErrSubmitBusy):
		return FailureBusy
	default:
		return FailureUnknown
	}
}

// DescribeFailure 返回展示给用户的错误信息
func DescribeFailure(err error) string {
	switch ClassifyError(err) {
	case FailureNone:
		return ""
	case FailureNetworkUnavailable:
		return "Сервис недоступен, попробуйте ещё раз"
	case FailureBackendRejected:
		var rejected *BackendRejectedError
		errors.As(err, &rejected)
		if rejected.Reason != "" {
			return "Команда отклонена: " + rejected.Reason
		}
		return "Команда отклонена сервисом"
	case FailureMalformedResponse:
		return "Сервис вернул некорректный ответ"
	case FailureBusy:
		return "Предыдущая команда ещё выполняется"
	default:
		return "Не удалось выполнить команду"
	}
}

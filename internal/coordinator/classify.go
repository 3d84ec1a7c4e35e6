package coordinator

import (
	"errors"

	"github.com/langchou/tesbridge/internal/api/teslemetry"
)

// Kind 资源类型
type Kind string

const (
	KindVehicle    Kind = "vehicle"
	KindEnergyLive Kind = "energy_live"
	KindEnergyInfo Kind = "energy_info"
)

// OutcomeKind 拉取结果分类
type OutcomeKind int

const (
	OutcomeOK OutcomeKind = iota
	OutcomeTransient
	OutcomeAuthInvalid
	OutcomeFatal
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeOK:
		return "ok"
	case OutcomeTransient:
		return "transient"
	case OutcomeAuthInvalid:
		return "auth_invalid"
	case OutcomeFatal:
		return "fatal"
	}
	return "unknown"
}

// MessageInvalidResponse 响应格式错误时的提示
const MessageInvalidResponse = "Invalid response from Teslemetry"

// Outcome 一次拉取的分类结果
type Outcome struct {
	Kind OutcomeKind
	// Transient 时为原因，如 offline
	Reason string
	// Fatal / AuthInvalid 时为描述
	Message string
	Err     error
}

// Classify 把拉取错误映射为结果分类
func Classify(kind Kind, err error) Outcome {
	if err == nil {
		return Outcome{Kind: OutcomeOK}
	}

	switch {
	case errors.Is(err, teslemetry.ErrInvalidToken),
		errors.Is(err, teslemetry.ErrSubscriptionRequired),
		errors.Is(err, teslemetry.ErrForbidden):
		return Outcome{Kind: OutcomeAuthInvalid, Message: err.Error(), Err: err}

	case errors.Is(err, teslemetry.ErrVehicleOffline):
		if kind == KindVehicle {
			return Outcome{Kind: OutcomeTransient, Reason: teslemetry.StateOffline, Err: err}
		}
		return Outcome{Kind: OutcomeFatal, Message: err.Error(), Err: err}

	case errors.Is(err, teslemetry.ErrMalformedResponse):
		return Outcome{Kind: OutcomeFatal, Message: MessageInvalidResponse, Err: err}
	}

	var apiErr *teslemetry.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return Outcome{Kind: OutcomeFatal, Message: apiErr.Message, Err: err}
	}

	return Outcome{Kind: OutcomeFatal, Message: err.Error(), Err: err}
}

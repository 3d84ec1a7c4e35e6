package teslemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// 错误定义
var (
	ErrInvalidToken         = errors.New("invalid token")
	ErrSubscriptionRequired = errors.New("subscription required")
	ErrForbidden            = errors.New("forbidden")
	ErrVehicleOffline       = errors.New("vehicle offline")
	ErrMalformedResponse    = errors.New("malformed response")
)

// APIError 其它 API 错误
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("teslemetry api error: status=%d", e.Status)
	}
	return fmt.Sprintf("teslemetry api error: status=%d %s", e.Status, e.Message)
}

// CommandError 车辆拒绝执行命令
type CommandError struct {
	Command string
	Reason  string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %s failed: %s", e.Command, e.Reason)
}

// checkStatus 把 HTTP 状态码映射为错误
func checkStatus(status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}

	switch status {
	case http.StatusUnauthorized:
		return ErrInvalidToken
	case http.StatusPaymentRequired:
		return ErrSubscriptionRequired
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusRequestTimeout:
		return ErrVehicleOffline
	}

	return &APIError{Status: status, Message: errorMessage(body)}
}

// errorMessage 从错误响应中提取描述
func errorMessage(body []byte) string {
	var resp struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if err := json.Unmarshal(body, &resp); err == nil {
		if resp.ErrorDescription != "" {
			return resp.ErrorDescription
		}
		if resp.Error != "" {
			return resp.Error
		}
	}
	return strings.TrimSpace(string(body))
}

package coordinator

import "fmt"

// AuthFailedError 凭证被拒绝，需要重新认证，轮询停止
type AuthFailedError struct {
	Kind Kind
	ID   string
	Err  error
}

func (e *AuthFailedError) Error() string {
	return fmt.Sprintf("%s %s: authentication failed: %v", e.Kind, e.ID, e.Err)
}

func (e *AuthFailedError) Unwrap() error {
	return e.Err
}

// UpdateFailedError 本次刷新失败，缓存保留，下个周期继续
type UpdateFailedError struct {
	Kind    Kind
	ID      string
	Message string
	Err     error
}

func (e *UpdateFailedError) Error() string {
	return fmt.Sprintf("%s %s: update failed: %s", e.Kind, e.ID, e.Message)
}

func (e *UpdateFailedError) Unwrap() error {
	return e.Err
}

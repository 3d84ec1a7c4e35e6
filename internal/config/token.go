package config

import (
	"encoding/json"
	"errors"
	"os"
	"time"
)

// StoredToken token 文件内容
type StoredToken struct {
	AccessToken string    `json:"access_token"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// LoadToken 读取 token 文件，文件不存在时返回空字符串
func LoadToken(filename string) (string, error) {
	data, err := os.ReadFile(filename)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	var token StoredToken
	if err := json.Unmarshal(data, &token); err != nil {
		return "", err
	}
	return token.AccessToken, nil
}

// SaveToken 保存 token
func SaveToken(filename, accessToken string) error {
	data, err := json.MarshalIndent(StoredToken{
		AccessToken: accessToken,
		UpdatedAt:   time.Now(),
	}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0600)
}

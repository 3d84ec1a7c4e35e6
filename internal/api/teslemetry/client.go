package teslemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// DefaultHost Teslemetry API 地址
const DefaultHost = "https://api.teslemetry.com"

// Client Teslemetry API 客户端
type Client struct {
	httpClient *http.Client
	base       http.RoundTripper
	apiHost    string

	mu     sync.RWMutex
	source oauth2.TokenSource
}

// NewClient 创建新的 Teslemetry API 客户端
func NewClient(apiHost, accessToken string) *Client {
	if apiHost == "" {
		apiHost = DefaultHost
	}

	c := &Client{
		apiHost: strings.TrimRight(apiHost, "/"),
		source:  staticSource(accessToken),
	}
	c.SetHTTPClient(&http.Client{Timeout: 30 * time.Second})

	return c
}

// SetHTTPClient 替换底层 http.Client (用于测试)
// 认证头由 oauth2.Transport 注入，每次请求都读取当前 token
func (c *Client) SetHTTPClient(base *http.Client) {
	c.base = base.Transport
	if c.base == nil {
		c.base = http.DefaultTransport
	}
	c.httpClient = &http.Client{
		Timeout: base.Timeout,
		Transport: &oauth2.Transport{
			Source: tokenSourceFunc(c.token),
			Base:   c.base,
		},
	}
}

// SetToken 设置访问令牌
func (c *Client) SetToken(accessToken string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.source = staticSource(accessToken)
}

// HasToken 是否已配置令牌
func (c *Client) HasToken() bool {
	tok, err := c.token()
	return err == nil && tok.AccessToken != ""
}

func (c *Client) token() (*oauth2.Token, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.source.Token()
}

func staticSource(accessToken string) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: strings.TrimSpace(accessToken),
		TokenType:   "Bearer",
	})
}

type tokenSourceFunc func() (*oauth2.Token, error)

func (f tokenSourceFunc) Token() (*oauth2.Token, error) {
	return f()
}

// apiResponse 通用 API 响应结构
type apiResponse struct {
	Response json.RawMessage `json:"response"`
	Error    string          `json:"error,omitempty"`
}

// doRequest 执行带认证的请求并解析 response 字段
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiHost+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "tesbridge/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkStatus(resp.StatusCode, raw); err != nil {
		return nil, err
	}

	var apiResp apiResponse
	if err := json.Unmarshal(raw, &apiResp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(apiResp.Response) == 0 || string(apiResp.Response) == "null" {
		if apiResp.Error != "" {
			return nil, &APIError{Status: resp.StatusCode, Message: apiResp.Error}
		}
		return nil, fmt.Errorf("%w: missing response", ErrMalformedResponse)
	}

	return apiResp.Response, nil
}

// getObject 请求并把 response 解析为 JSON 对象
func (c *Client) getObject(ctx context.Context, path string) (map[string]interface{}, error) {
	raw, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	return decodeObject(raw)
}

func decodeObject(raw json.RawMessage) (map[string]interface{}, error) {
	var obj map[string]interface{}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if obj == nil {
		return nil, fmt.Errorf("%w: response is not an object", ErrMalformedResponse)
	}
	return obj, nil
}

// Metadata 获取账户元数据
func (c *Client) Metadata(ctx context.Context) (*Metadata, error) {
	return c.metadata(ctx, c.httpClient)
}

// ValidateToken 用指定 token 请求元数据，不替换当前 token
func (c *Client) ValidateToken(ctx context.Context, accessToken string) (*Metadata, error) {
	hc := &http.Client{
		Timeout: c.httpClient.Timeout,
		Transport: &oauth2.Transport{
			Source: staticSource(accessToken),
			Base:   c.base,
		},
	}
	return c.metadata(ctx, hc)
}

func (c *Client) metadata(ctx context.Context, hc *http.Client) (*Metadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiHost+"/api/metadata", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("metadata request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := checkStatus(resp.StatusCode, raw); err != nil {
		return nil, err
	}

	var meta Metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return &meta, nil
}

// Products 获取账户下所有产品（车辆与能源站点）
func (c *Client) Products(ctx context.Context) ([]Product, error) {
	raw, err := c.doRequest(ctx, http.MethodGet, "/api/1/products", nil)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}

	var items []map[string]interface{}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	products := make([]Product, 0, len(items))
	for _, item := range items {
		products = append(products, newProduct(item))
	}
	return products, nil
}

// Vehicle 返回绑定到单辆车的 API
func (c *Client) Vehicle(vin string) *VehicleSpecific {
	return &VehicleSpecific{client: c, vin: vin}
}

// EnergySite 返回绑定到单个能源站点的 API
func (c *Client) EnergySite(id int64) *EnergySpecific {
	return &EnergySpecific{client: c, id: id}
}

// VehicleSpecific 单车 API
type VehicleSpecific struct {
	client *Client
	vin    string
}

// VIN 车架号
func (v *VehicleSpecific) VIN() string {
	return v.vin
}

// VehicleData 获取车辆完整数据
func (v *VehicleSpecific) VehicleData(ctx context.Context, endpoints ...string) (map[string]interface{}, error) {
	path := fmt.Sprintf("/api/1/vehicles/%s/vehicle_data", url.PathEscape(v.vin))
	if len(endpoints) > 0 {
		path += "?endpoints=" + url.QueryEscape(strings.Join(endpoints, ";"))
	}
	return v.client.getObject(ctx, path)
}

// WakeUp 唤醒车辆，返回唤醒后报告的状态
func (v *VehicleSpecific) WakeUp(ctx context.Context) (string, error) {
	raw, err := v.client.doRequest(ctx, http.MethodPost, fmt.Sprintf("/api/1/vehicles/%s/wake_up", url.PathEscape(v.vin)), nil)
	if err != nil {
		return "", err
	}

	obj, err := decodeObject(raw)
	if err != nil {
		return "", err
	}
	state, ok := obj["state"].(string)
	if !ok {
		return "", fmt.Errorf("%w: missing state", ErrMalformedResponse)
	}
	return state, nil
}

// command 发送车辆命令
func (v *VehicleSpecific) command(ctx context.Context, name string, body interface{}) error {
	raw, err := v.client.doRequest(ctx, http.MethodPost, fmt.Sprintf("/api/1/vehicles/%s/command/%s", url.PathEscape(v.vin), name), body)
	if err != nil {
		return err
	}

	var result CommandResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if !result.Result {
		return &CommandError{Command: name, Reason: result.Reason}
	}
	return nil
}

// WindowControl 车窗控制，command 为 vent 或 close
func (v *VehicleSpecific) WindowControl(ctx context.Context, command string) error {
	return v.command(ctx, "window_control", map[string]interface{}{
		"command": command,
		"lat":     0,
		"lon":     0,
	})
}

// ChargePortDoorOpen 打开（并解锁）充电口
func (v *VehicleSpecific) ChargePortDoorOpen(ctx context.Context) error {
	return v.command(ctx, "charge_port_door_open", nil)
}

// ChargePortDoorClose 关闭充电口
func (v *VehicleSpecific) ChargePortDoorClose(ctx context.Context) error {
	return v.command(ctx, "charge_port_door_close", nil)
}

// ActuateTrunk 开关前/后备箱，whichTrunk 为 front 或 rear
func (v *VehicleSpecific) ActuateTrunk(ctx context.Context, whichTrunk string) error {
	return v.command(ctx, "actuate_trunk", map[string]interface{}{
		"which_trunk": whichTrunk,
	})
}

// EnergySpecific 单个能源站点 API
type EnergySpecific struct {
	client *Client
	id     int64
}

// ID 站点 ID
func (e *EnergySpecific) ID() int64 {
	return e.id
}

// LiveStatus 获取站点实时状态
func (e *EnergySpecific) LiveStatus(ctx context.Context) (map[string]interface{}, error) {
	return e.client.getObject(ctx, fmt.Sprintf("/api/1/energy_sites/%d/live_status", e.id))
}

// SiteInfo 获取站点信息
func (e *EnergySpecific) SiteInfo(ctx context.Context) (map[string]interface{}, error) {
	return e.client.getObject(ctx, fmt.Sprintf("/api/1/energy_sites/%d/site_info", e.id))
}

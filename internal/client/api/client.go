package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/iudanet/finkeeper/pkg/api"
)

//go:generate moq -out client_mock.go . ClientAPI

// ClientAPI определяет интерфейс API клиента для сервисов устройства
type ClientAPI interface {
	Register(ctx context.Context, req api.RegisterRequest) (*api.RegisterResponse, error)
	Login(ctx context.Context, req api.LoginRequest) (*api.TokenResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*api.TokenResponse, error)
	Logout(ctx context.Context, accessToken string) error

	Sync(ctx context.Context, accessToken string, req api.SyncRequest) (*api.SyncResponse, error)
	ListRecords(ctx context.Context, accessToken string) (*api.RecordsListResponse, error)

	ListConflicts(ctx context.Context, accessToken, status string) (*api.ConflictsListResponse, error)
	ResolveConflict(ctx context.Context, accessToken, conflictID string, req api.ResolveConflictRequest) (*api.ResolveConflictResponse, error)

	StateAt(ctx context.Context, accessToken string, at time.Time, includeRecords bool) (*api.StateResponse, error)
	Diff(ctx context.Context, accessToken string, from, to time.Time) (*api.DiffResponse, error)
	Evolution(ctx context.Context, accessToken string, start, end time.Time, interval string) (*api.EvolutionResponse, error)
	Timeline(ctx context.Context, accessToken string, from, to time.Time) (*api.TimelineResponse, error)
}

// Client представляет HTTP клиент для взаимодействия с сервером
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// Compile-time check that Client implements ClientAPI
var _ ClientAPI = (*Client)(nil)

// NewClient создает новый API клиент
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("stopped after 10 redirects")
				}
				// Копируем заголовок Authorization при редиректе
				if len(via) > 0 && via[0].Header.Get("Authorization") != "" {
					req.Header.Set("Authorization", via[0].Header.Get("Authorization"))
				}
				return nil
			},
		},
	}
}

// Register регистрирует нового пользователя
func (c *Client) Register(ctx context.Context, req api.RegisterRequest) (*api.RegisterResponse, error) {
	var resp api.RegisterResponse
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/auth/register", "", req, &resp); err != nil {
		return nil, fmt.Errorf("register request failed: %w", err)
	}
	return &resp, nil
}

// Login выполняет аутентификацию пользователя
func (c *Client) Login(ctx context.Context, req api.LoginRequest) (*api.TokenResponse, error) {
	var resp api.TokenResponse
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/auth/login", "", req, &resp); err != nil {
		return nil, fmt.Errorf("login request failed: %w", err)
	}
	return &resp, nil
}

// Refresh обновляет пару токенов по refresh token
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*api.TokenResponse, error) {
	var resp api.TokenResponse
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/auth/refresh", refreshToken, nil, &resp); err != nil {
		return nil, fmt.Errorf("refresh request failed: %w", err)
	}
	return &resp, nil
}

// Logout инвалидирует refresh-токены пользователя на сервере
func (c *Client) Logout(ctx context.Context, accessToken string) error {
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/auth/logout", accessToken, nil, nil); err != nil {
		return fmt.Errorf("logout request failed: %w", err)
	}
	return nil
}

// Sync отправляет пакет локальных правок и получает исходы согласования
// вместе с серверными изменениями
func (c *Client) Sync(ctx context.Context, accessToken string, req api.SyncRequest) (*api.SyncResponse, error) {
	var resp api.SyncResponse
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/sync", accessToken, req, &resp); err != nil {
		return nil, fmt.Errorf("sync request failed: %w", err)
	}
	return &resp, nil
}

// ListRecords получает все записи пользователя с сервера
func (c *Client) ListRecords(ctx context.Context, accessToken string) (*api.RecordsListResponse, error) {
	var resp api.RecordsListResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/records", accessToken, nil, &resp); err != nil {
		return nil, fmt.Errorf("list records request failed: %w", err)
	}
	return &resp, nil
}

// ListConflicts получает конфликты пользователя; status фильтрует по
// open/resolved, пустая строка — все
func (c *Client) ListConflicts(ctx context.Context, accessToken, status string) (*api.ConflictsListResponse, error) {
	path := "/api/v1/conflicts"
	if status != "" {
		path += "?status=" + url.QueryEscape(status)
	}

	var resp api.ConflictsListResponse
	if err := c.doRequest(ctx, http.MethodGet, path, accessToken, nil, &resp); err != nil {
		return nil, fmt.Errorf("list conflicts request failed: %w", err)
	}
	return &resp, nil
}

// ResolveConflict разрешает конфликт выбранной стратегией
func (c *Client) ResolveConflict(
	ctx context.Context,
	accessToken, conflictID string,
	req api.ResolveConflictRequest,
) (*api.ResolveConflictResponse, error) {
	path := "/api/v1/conflicts/" + url.PathEscape(conflictID) + "/resolve"

	var resp api.ResolveConflictResponse
	if err := c.doRequest(ctx, http.MethodPost, path, accessToken, req, &resp); err != nil {
		return nil, fmt.Errorf("resolve conflict request failed: %w", err)
	}
	return &resp, nil
}

// StateAt получает финансовое состояние на момент времени
func (c *Client) StateAt(ctx context.Context, accessToken string, at time.Time, includeRecords bool) (*api.StateResponse, error) {
	query := url.Values{}
	query.Set("at", at.Format(time.RFC3339))
	if includeRecords {
		query.Set("records", "true")
	}

	var resp api.StateResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/history/state?"+query.Encode(), accessToken, nil, &resp); err != nil {
		return nil, fmt.Errorf("state request failed: %w", err)
	}
	return &resp, nil
}

// Diff получает разницу состояний между двумя моментами
func (c *Client) Diff(ctx context.Context, accessToken string, from, to time.Time) (*api.DiffResponse, error) {
	query := url.Values{}
	query.Set("from", from.Format(time.RFC3339))
	query.Set("to", to.Format(time.RFC3339))

	var resp api.DiffResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/history/diff?"+query.Encode(), accessToken, nil, &resp); err != nil {
		return nil, fmt.Errorf("diff request failed: %w", err)
	}
	return &resp, nil
}

// Evolution получает выборку эволюции состояния через равные интервалы
func (c *Client) Evolution(
	ctx context.Context,
	accessToken string,
	start, end time.Time,
	interval string,
) (*api.EvolutionResponse, error) {
	query := url.Values{}
	query.Set("start", start.Format(time.RFC3339))
	query.Set("end", end.Format(time.RFC3339))
	query.Set("interval", interval)

	var resp api.EvolutionResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/history/evolution?"+query.Encode(), accessToken, nil, &resp); err != nil {
		return nil, fmt.Errorf("evolution request failed: %w", err)
	}
	return &resp, nil
}

// Timeline получает журнал изменений за период с текстовыми описаниями
func (c *Client) Timeline(ctx context.Context, accessToken string, from, to time.Time) (*api.TimelineResponse, error) {
	query := url.Values{}
	query.Set("from", from.Format(time.RFC3339))
	query.Set("to", to.Format(time.RFC3339))

	var resp api.TimelineResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/history/timeline?"+query.Encode(), accessToken, nil, &resp); err != nil {
		return nil, fmt.Errorf("timeline request failed: %w", err)
	}
	return &resp, nil
}

// doRequest выполняет HTTP запрос. Пустой token означает запрос без
// заголовка Authorization.
func (c *Client) doRequest(ctx context.Context, method, path, token string, body, result any) error {
	url := c.baseURL + path

	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp api.ErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Message != "" {
			return fmt.Errorf("server error (%d): %s", resp.StatusCode, errResp.Message)
		}
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

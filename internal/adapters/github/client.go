package github

import (
	"backup-service/internal/contextkeys"
	"backup-service/internal/core/domain"
	"backup-service/internal/core/port"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const (
	acceptJSON = "application/vnd.github+json"
	acceptRaw  = "application/vnd.github.raw+json"
	apiVersion = "2022-11-28"
	userAgent  = "crm-backup-service"
)

// Config - параметры доступа к репозиторию с бэкапами
type Config struct {
	BaseURL        string
	Owner          string
	Repository     string
	Token          string
	Branch         string
	CommitterName  string
	CommitterEmail string
	// RetryMax - повторы GET при сетевых ошибках, 5xx и 429. PUT и 4xx не повторяются.
	RetryMax int
	Timeout  time.Duration
}

// Client реализует port.ObjectStorePort поверх GitHub Contents API.
// Токен версии - SHA блоба файла.
type Client struct {
	cfg        Config
	httpClient *retryablehttp.Client
	// PUT не повторяется: после 5xx запись могла уже пройти, а повтор
	// со старым sha вернул бы конфликт на собственную запись
	writeClient *retryablehttp.Client
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.github.com"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}

	return &Client{
		cfg:         cfg,
		httpClient:  newRetryableClient(cfg, cfg.RetryMax),
		writeClient: newRetryableClient(cfg, 0),
	}
}

func newRetryableClient(cfg Config, retryMax int) *retryablehttp.Client {
	httpClient := retryablehttp.NewClient()
	httpClient.Logger = nil // логируем сами, через LoggerPort
	httpClient.HTTPClient.Timeout = cfg.Timeout
	httpClient.RetryMax = retryMax
	httpClient.RetryWaitMin = 500 * time.Millisecond
	httpClient.RetryWaitMax = 5 * time.Second
	// После исчерпания повторов нужен последний ответ, чтобы достать сообщение API
	httpClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return httpClient
}

func (c *Client) contentsURL(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	u := fmt.Sprintf("%s/repos/%s/%s/contents/%s",
		c.cfg.BaseURL, url.PathEscape(c.cfg.Owner), url.PathEscape(c.cfg.Repository), strings.Join(segments, "/"))
	if c.cfg.Branch != "" {
		u += "?ref=" + url.QueryEscape(c.cfg.Branch)
	}
	return u
}

// doRequest - внутренний хелпер для выполнения запросов
func (c *Client) doRequest(ctx context.Context, method, url, accept string, body []byte) (*http.Response, error) {
	var rawBody interface{}
	if body != nil {
		rawBody = body
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, url, rawBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("Accept", accept)
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if traceID := contextkeys.TraceIDFromContext(ctx); traceID != "" {
		req.Header.Set("X-Trace-ID", traceID)
	}

	if method == http.MethodGet {
		return c.httpClient.Do(req)
	}
	return c.writeClient.Do(req)
}

func (c *Client) ResolveVersion(ctx context.Context, path string) (domain.RemoteVersion, error) {
	clientLogger := contextkeys.LoggerFromContext(ctx).WithFields(port.Fields{
		"component": "GitHubClient",
		"method":    "ResolveVersion",
		"path":      path,
	})

	content, err := c.getFile(ctx, path, acceptJSON)
	if errors.Is(err, domain.ErrBackupNotFound) {
		clientLogger.Debug("File does not exist yet", nil)
		return domain.RemoteVersion{Exists: false}, nil
	}
	if err != nil {
		clientLogger.Error("Failed to resolve file version on GitHub", err, nil)
		return domain.RemoteVersion{}, err
	}
	if content.Type != "" && content.Type != "file" {
		return domain.RemoteVersion{}, &domain.TransportError{Path: path, StatusCode: http.StatusOK, Detail: fmt.Sprintf("path is a %s, not a file", content.Type)}
	}

	version := domain.RemoteVersion{Exists: true, Token: domain.VersionToken(content.SHA)}
	// Хэш считается только если GitHub отдал содержимое (файлы до 1 МБ)
	if content.Encoding == "base64" && content.Content != "" {
		if payload, err := decodeContent(content.Content); err == nil {
			version.ContentHash = domain.ContentHash(payload)
		} else {
			clientLogger.Warn("Could not decode current file content", port.Fields{"error": err.Error()})
		}
	}

	clientLogger.Debug("Resolved file version", port.Fields{"sha": content.SHA, "size": content.Size})
	return version, nil
}

func (c *Client) WriteIfMatch(ctx context.Context, req domain.WriteRequest) (domain.WriteResult, error) {
	clientLogger := contextkeys.LoggerFromContext(ctx).WithFields(port.Fields{
		"component": "GitHubClient",
		"method":    "WriteIfMatch",
		"path":      req.Path,
	})

	body := putRequest{
		Message: req.Message,
		Content: base64.StdEncoding.EncodeToString(req.Payload),
		Branch:  c.cfg.Branch,
	}
	if req.Version.Exists {
		body.SHA = string(req.Version.Token)
	}
	if c.cfg.CommitterName != "" && c.cfg.CommitterEmail != "" {
		body.Committer = &committer{Name: c.cfg.CommitterName, Email: c.cfg.CommitterEmail}
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return domain.WriteResult{}, fmt.Errorf("failed to encode request body: %w", err)
	}

	// ветка передается в теле, а не в query
	putURL := strings.SplitN(c.contentsURL(req.Path), "?", 2)[0]
	resp, err := c.doRequest(ctx, http.MethodPut, putURL, acceptJSON, encoded)
	if err != nil {
		clientLogger.Error("Failed to perform request to GitHub", err, nil)
		return domain.WriteResult{}, &domain.TransportError{Path: req.Path, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
	case isConflict(resp):
		detail := readErrorMessage(resp)
		clientLogger.Warn("GitHub reported a version conflict", port.Fields{"status_code": resp.StatusCode, "detail": detail})
		return domain.WriteResult{}, &domain.ConflictError{Path: req.Path, Token: req.Version.Token, Detail: detail}
	default:
		transportErr := newTransportError(req.Path, resp)
		clientLogger.Error("Received error response from GitHub", transportErr, port.Fields{"status_code": resp.StatusCode})
		return domain.WriteResult{}, transportErr
	}

	var result putResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		clientLogger.Error("Failed to decode response from GitHub", err, nil)
		return domain.WriteResult{}, &domain.TransportError{Path: req.Path, StatusCode: resp.StatusCode, Err: err}
	}

	clientLogger.Info("File written", port.Fields{"sha": result.Content.SHA, "commit": result.Commit.SHA})
	return domain.WriteResult{
		Token:   domain.VersionToken(result.Content.SHA),
		WriteID: result.Commit.SHA,
	}, nil
}

func (c *Client) Fetch(ctx context.Context, path string) ([]byte, error) {
	clientLogger := contextkeys.LoggerFromContext(ctx).WithFields(port.Fields{
		"component": "GitHubClient",
		"method":    "Fetch",
		"path":      path,
	})

	content, err := c.getFile(ctx, path, acceptJSON)
	if err != nil {
		if !errors.Is(err, domain.ErrBackupNotFound) {
			clientLogger.Error("Failed to download backup from GitHub", err, nil)
		}
		return nil, err
	}

	var data []byte
	if content.Encoding == "base64" && content.Content != "" {
		data, err = decodeContent(content.Content)
		if err != nil {
			return nil, &domain.TransportError{Path: path, Detail: "invalid base64 content", Err: err}
		}
	} else {
		// Файлы больше 1 МБ GitHub отдает без содержимого (encoding "none")
		clientLogger.Debug("Content not inlined, downloading raw file", port.Fields{"size": content.Size})
		data, err = c.getRaw(ctx, path)
		if err != nil {
			clientLogger.Error("Failed to download raw backup from GitHub", err, nil)
			return nil, err
		}
	}

	clientLogger.Debug("Backup downloaded", port.Fields{"bytes": len(data), "sha": content.SHA})
	return data, nil
}

func (c *Client) getFile(ctx context.Context, path, accept string) (*contentResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, c.contentsURL(path), accept, nil)
	if err != nil {
		return nil, &domain.TransportError{Path: path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.ErrBackupNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, newTransportError(path, resp)
	}

	var content contentResponse
	if err := json.NewDecoder(resp.Body).Decode(&content); err != nil {
		return nil, &domain.TransportError{Path: path, StatusCode: resp.StatusCode, Err: err}
	}
	return &content, nil
}

func (c *Client) getRaw(ctx context.Context, path string) ([]byte, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, c.contentsURL(path), acceptRaw, nil)
	if err != nil {
		return nil, &domain.TransportError{Path: path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.ErrBackupNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, newTransportError(path, resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.TransportError{Path: path, StatusCode: resp.StatusCode, Err: err}
	}
	return data, nil
}

// isConflict: 409 - устаревший sha; 422 с упоминанием sha - токен не передан для существующего файла
func isConflict(resp *http.Response) bool {
	if resp.StatusCode == http.StatusConflict {
		return true
	}
	if resp.StatusCode != http.StatusUnprocessableEntity {
		return false
	}
	msg := peekErrorMessage(resp)
	return strings.Contains(strings.ToLower(msg), "sha")
}

// peekErrorMessage читает сообщение, оставляя тело доступным для повторного чтения
func peekErrorMessage(resp *http.Response) string {
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(data))
	return parseErrorMessage(data)
}

func readErrorMessage(resp *http.Response) string {
	data, _ := io.ReadAll(resp.Body)
	return parseErrorMessage(data)
}

func parseErrorMessage(data []byte) string {
	var apiErr errorResponse
	if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Message != "" {
		return apiErr.Message
	}
	return strings.TrimSpace(string(data))
}

func newTransportError(path string, resp *http.Response) *domain.TransportError {
	return &domain.TransportError{
		Path:       path,
		StatusCode: resp.StatusCode,
		Detail:     "GitHub API error: " + readErrorMessage(resp),
	}
}

func decodeContent(content string) ([]byte, error) {
	cleaned := strings.NewReplacer("\n", "", "\r", "").Replace(content)
	return base64.StdEncoding.DecodeString(cleaned)
}

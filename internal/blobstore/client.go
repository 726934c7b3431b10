// Пакет blobstore — HTTP-клиент хранилища изображений (storage element).
// Поддерживает TLS с кастомным CA (PR_STORAGE_CA_CERT_PATH).
// Операции: Upload (POST /api/v1/files/upload, multipart),
// Delete (DELETE /api/v1/files/{key}, идемпотентно), Info (GET /api/v1/info).
package blobstore

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"strings"
	"time"
)

// TokenProvider — функция, возвращающая bearer-токен для авторизации
// запросов к storage element. Может быть nil — запросы без авторизации.
type TokenProvider func(ctx context.Context) (string, error)

// StaticTokenProvider возвращает TokenProvider с фиксированным токеном.
// Пустой токен — запросы без заголовка Authorization.
func StaticTokenProvider(token string) TokenProvider {
	if token == "" {
		return nil
	}
	return func(_ context.Context) (string, error) {
		return token, nil
	}
}

// UploadResult — результат загрузки изображения.
type UploadResult struct {
	// Key — ключ файла на storage element (file_id).
	Key string
	// URL — публичный URL для скачивания.
	URL string
}

// Info — информация о storage element (ответ GET /api/v1/info).
type Info struct {
	StorageID string `json:"storage_id"`
	Mode      string `json:"mode"`
	Status    string `json:"status"`
	Version   string `json:"version"`
}

// uploadResponse — ответ storage element на загрузку файла.
type uploadResponse struct {
	FileID      string `json:"file_id"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// Client — HTTP-клиент storage element.
type Client struct {
	httpClient    *http.Client
	baseURL       string
	tokenProvider TokenProvider
	logger        *slog.Logger
}

// New создаёт клиент storage element.
// baseURL — базовый URL элемента (trailing slash убирается).
// caCertPath — путь к CA-сертификату для TLS (пустая строка — стандартный пул).
// tokenProvider — функция для получения bearer-токена (может быть nil).
func New(baseURL, caCertPath string, timeout time.Duration, tokenProvider TokenProvider, logger *slog.Logger) (*Client, error) {
	httpClient := &http.Client{Timeout: timeout}

	if caCertPath != "" {
		tlsConfig, err := buildTLSConfig(caCertPath)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA-сертификата storage element: %w", err)
		}
		httpClient.Transport = &http.Transport{
			TLSClientConfig: tlsConfig,
		}
		logger.Info("CA-сертификат storage element добавлен в пул доверия",
			slog.String("ca_cert", caCertPath),
		)
	}

	return &Client{
		httpClient:    httpClient,
		baseURL:       strings.TrimRight(baseURL, "/"),
		tokenProvider: tokenProvider,
		logger:        logger.With(slog.String("component", "blobstore_client")),
	}, nil
}

// buildTLSConfig создаёт TLS-конфигурацию с кастомным CA.
func buildTLSConfig(caCertPath string) (*tls.Config, error) {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, fmt.Errorf("чтение CA-сертификата: %w", err)
	}

	caCertPool, err := x509.SystemCertPool()
	if err != nil {
		caCertPool = x509.NewCertPool()
	}
	caCertPool.AppendCertsFromPEM(caCert)

	return &tls.Config{
		RootCAs: caCertPool,
	}, nil
}

// Upload загружает изображение на storage element.
// POST /api/v1/files/upload — multipart form с полем file.
// Возвращает ключ файла и публичный URL скачивания.
func (c *Client) Upload(ctx context.Context, filename, contentType string, data []byte) (*UploadResult, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("создание multipart: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("запись multipart: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("закрытие multipart: %w", err)
	}

	reqURL := c.baseURL + "/api/v1/files/upload"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, &body)
	if err != nil {
		return nil, fmt.Errorf("создание запроса Upload: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	if err := c.authorize(ctx, req); err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("запрос Upload к %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("storage element вернул статус %d на Upload: %s", resp.StatusCode, string(respBody))
	}

	var uploaded uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&uploaded); err != nil {
		return nil, fmt.Errorf("декодирование ответа Upload: %w", err)
	}
	if uploaded.FileID == "" {
		return nil, fmt.Errorf("storage element вернул пустой file_id")
	}

	return &UploadResult{
		Key: uploaded.FileID,
		URL: c.DownloadURL(uploaded.FileID),
	}, nil
}

// Delete удаляет файл по ключу. DELETE /api/v1/files/{key}.
// Идемпотентно: 404 (ключ уже отсутствует) не считается ошибкой.
func (c *Client) Delete(ctx context.Context, key string) error {
	reqURL := c.baseURL + "/api/v1/files/" + key

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, reqURL, nil)
	if err != nil {
		return fmt.Errorf("создание запроса Delete: %w", err)
	}

	if err := c.authorize(ctx, req); err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("запрос Delete к %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusNotFound:
		// Ключ уже отсутствует — удаление идемпотентно
		c.logger.Debug("Файл уже отсутствует на storage element",
			slog.String("key", key),
		)
		return nil
	default:
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("storage element вернул статус %d на Delete: %s", resp.StatusCode, string(respBody))
	}
}

// Info запрашивает информацию о storage element.
// GET /api/v1/info — публичный endpoint, не требует авторизации.
func (c *Client) Info(ctx context.Context) (*Info, error) {
	reqURL := c.baseURL + "/api/v1/info"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("создание запроса Info: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("запрос Info к %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("storage element вернул статус %d: %s", resp.StatusCode, string(respBody))
	}

	var info Info
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("декодирование Info: %w", err)
	}

	return &info, nil
}

// DownloadURL возвращает публичный URL скачивания файла по ключу.
func (c *Client) DownloadURL(key string) string {
	return c.baseURL + "/api/v1/files/" + key + "/download"
}

// authorize добавляет заголовок Authorization, если задан tokenProvider.
func (c *Client) authorize(ctx context.Context, req *http.Request) error {
	if c.tokenProvider == nil {
		return nil
	}
	token, err := c.tokenProvider(ctx)
	if err != nil {
		return fmt.Errorf("получение токена storage element: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

// CheckReady проверяет доступность storage element для health endpoint.
// Реализует интерфейс handlers.ReadinessChecker.
func (c *Client) CheckReady() (status string, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	info, err := c.Info(ctx)
	if err != nil {
		return "fail", fmt.Sprintf("storage element недоступен: %v", err)
	}
	return "ok", fmt.Sprintf("storage element %s: %s", info.StorageID, info.Status)
}

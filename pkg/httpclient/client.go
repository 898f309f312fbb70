package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nao1215/petadmin/pkg/session"
)

// Observer はリクエストの分類結果を受け取る。メトリクス収集に使う。
type Observer interface {
	Observe(method string, outcome Outcome)
}

// Client はリモートAPIへのゲートウェイクライアント。
// 複数のゴルーチンから同時に使用できる。
type Client struct {
	// httpClient は内部で使用するHTTPクライアント。
	httpClient *http.Client
	// baseURL は接続先APIのベースURL。末尾のスラッシュは取り除いてある。
	baseURL string
	// sessions はトークンの取得元。
	sessions session.Reader
	logger   zerolog.Logger
	observer Observer
}

// Option はClientの任意設定。
type Option func(*Client)

// WithHTTPClient は内部で使用するHTTPクライアントを差し替える。
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger は認証失敗などを記録するロガーを設定する。
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithObserver はリクエストごとの分類結果の通知先を設定する。
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// New は新しいゲートウェイクライアントを生成する。
// baseAddressには接続先APIのベースURL（例: "http://localhost:3000"）を指定する。
// タイムアウトはトランスポートの既定値のままにする。
func New(baseAddress string, sessions session.Reader, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{},
		baseURL:    strings.TrimRight(baseAddress, "/"),
		sessions:   sessions,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL は接続先APIのベースURLを返す。
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Response はリモートAPIのレスポンス。
type Response struct {
	StatusCode int
	Header     http.Header
	// Body はレスポンスボディそのもの。
	Body []byte
}

// DecodeJSON はレスポンスボディをvにデシリアライズする。
func (r *Response) DecodeJSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("レスポンスボディのデシリアライズに失敗: %w", err)
	}
	return nil
}

// Get は指定パスにGETリクエストを送信する。
func (c *Client) Get(ctx context.Context, path string) (*Response, error) {
	return c.Request(ctx, http.MethodGet, path, nil)
}

// Post は指定パスにJSONボディでPOSTリクエストを送信する。
func (c *Client) Post(ctx context.Context, path string, body any) (*Response, error) {
	return c.Request(ctx, http.MethodPost, path, body)
}

// Put は指定パスにJSONボディでPUTリクエストを送信する。
func (c *Client) Put(ctx context.Context, path string, body any) (*Response, error) {
	return c.Request(ctx, http.MethodPut, path, body)
}

// Delete は指定パスにDELETEリクエストを送信する。
func (c *Client) Delete(ctx context.Context, path string) (*Response, error) {
	return c.Request(ctx, http.MethodDelete, path, nil)
}

// GetJSON はGETリクエストを送信し、2xxのボディをresultにデシリアライズする。
func (c *Client) GetJSON(ctx context.Context, path string, result any) error {
	resp, err := c.Get(ctx, path)
	if err != nil {
		return err
	}
	return resp.DecodeJSON(result)
}

// PostJSON はPOSTリクエストを送信し、2xxのボディをresultにデシリアライズする。
// resultがnilの場合はボディを読み捨てる。
func (c *Client) PostJSON(ctx context.Context, path string, body any, result any) error {
	resp, err := c.Post(ctx, path, body)
	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	return resp.DecodeJSON(result)
}

// Request はリクエストを組み立てて送信し、レスポンスを分類して返す。
// 2xxの場合はボディを変更せずに返す。それ以外はエラーとして返し、
// エラー時もResponseは返さない。
func (c *Client) Request(ctx context.Context, method, path string, body any) (*Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("リクエストボディのシリアライズに失敗: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	url := c.resolve(path)
	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.New().String())

	credential, err := c.attachCredential(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(method, OutcomeNetworkError)
		return nil, &NetworkError{Method: method, URL: url, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.observe(method, OutcomeNetworkError)
		return nil, &NetworkError{Method: method, URL: url, Err: err}
	}

	return c.intercept(method, path, credential, &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       respBody,
	})
}

// attachCredential は送信時点のセッションを参照し、存在すればトークンを付与する。
// 付与したトークンを返す。
func (c *Client) attachCredential(ctx context.Context, req *http.Request) (string, error) {
	if c.sessions == nil {
		return "", nil
	}
	cur, ok, err := c.sessions.Current(ctx)
	if err != nil {
		return "", fmt.Errorf("セッションの取得に失敗: %w", err)
	}
	if !ok {
		return "", nil
	}
	req.Header.Set("Authorization", "Bearer "+cur.Token)
	return cur.Token, nil
}

// intercept はすべてのレスポンスに対して呼び出し元に返す前に実行される。
func (c *Client) intercept(method, path, credential string, resp *Response) (*Response, error) {
	outcome := Classify(resp.StatusCode)
	c.observe(method, outcome)

	switch outcome {
	case OutcomeSuccess:
		return resp, nil
	case OutcomeAuthFailure:
		c.logger.Warn().
			Str("method", method).
			Str("path", path).
			Int("status", resp.StatusCode).
			Msg("session expired or access denied")
		return nil, &AuthenticationFailure{
			StatusCode: resp.StatusCode,
			Body:       resp.Body,
			Message:    messageFrom(resp.Body),
			credential: credential,
		}
	default:
		return nil, &RequestFailure{
			StatusCode: resp.StatusCode,
			Body:       resp.Body,
			Message:    messageFrom(resp.Body),
		}
	}
}

func (c *Client) observe(method string, outcome Outcome) {
	if c.observer != nil {
		c.observer.Observe(method, outcome)
	}
}

// resolve はパスをベースURLからの相対パスとして解決する。
func (c *Client) resolve(path string) string {
	if path == "" {
		return c.baseURL
	}
	return c.baseURL + "/" + strings.TrimLeft(path, "/")
}

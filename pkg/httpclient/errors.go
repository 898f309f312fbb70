package httpclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Outcome はレスポンスの分類結果を表す。
type Outcome string

const (
	// OutcomeSuccess は2xxのレスポンス。
	OutcomeSuccess Outcome = "success"
	// OutcomeAuthFailure は401または403のレスポンス。
	OutcomeAuthFailure Outcome = "auth_failure"
	// OutcomeRequestFailure はその他の2xx以外のレスポンス。
	OutcomeRequestFailure Outcome = "request_failure"
	// OutcomeNetworkError はレスポンスを受け取れなかった場合。
	OutcomeNetworkError Outcome = "network_error"
)

// Classify はステータスコードを分類する。ボディの内容は見ない。
func Classify(status int) Outcome {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return OutcomeAuthFailure
	case status >= 200 && status < 300:
		return OutcomeSuccess
	default:
		return OutcomeRequestFailure
	}
}

// NetworkError は通信自体が完了しなかったことを表す。
// DNS解決失敗、接続失敗、タイムアウト、コンテキストのキャンセルが該当する。
type NetworkError struct {
	Method string
	URL    string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("HTTPリクエストの送信に失敗: %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// AuthenticationFailure は401または403のレスポンスを表す。
type AuthenticationFailure struct {
	StatusCode int
	Body       []byte
	// Message はサーバーが返したmensagem。無ければ空。
	Message string

	// credential はこのリクエストに付与したトークン。付与していなければ空。
	credential string
}

func (e *AuthenticationFailure) Error() string {
	return fmt.Sprintf("認証エラー: status=%d", e.StatusCode)
}

// IssuedWith は失敗したリクエストが指定トークンで送信されたかどうかを返す。
// ログアウトや再ログイン後に届いた古い失敗を見分けるために使う。
func (e *AuthenticationFailure) IssuedWith(token string) bool {
	return token != "" && e.credential == token
}

// RequestFailure は認証エラー以外の2xx以外のレスポンスを表す。
type RequestFailure struct {
	StatusCode int
	Body       []byte
	// Message はサーバーが返したmensagem。無ければ空。
	Message string
}

func (e *RequestFailure) Error() string {
	return fmt.Sprintf("HTTPエラー: status=%d, body=%s", e.StatusCode, string(e.Body))
}

// ServerMessage はエラーからサーバーが返したメッセージを取り出す。
func ServerMessage(err error) (string, bool) {
	var authErr *AuthenticationFailure
	if errors.As(err, &authErr) && authErr.Message != "" {
		return authErr.Message, true
	}
	var reqErr *RequestFailure
	if errors.As(err, &reqErr) && reqErr.Message != "" {
		return reqErr.Message, true
	}
	return "", false
}

// IsAuthenticationFailure はerrがAuthenticationFailureを含むかどうかを返す。
func IsAuthenticationFailure(err error) bool {
	var authErr *AuthenticationFailure
	return errors.As(err, &authErr)
}

// messageFrom はレスポンスボディから文字列のmensagemを取り出す。
// 一覧APIのようにmensagemが配列の場合は空を返す。
func messageFrom(body []byte) string {
	var envelope struct {
		Mensagem json.RawMessage `json:"mensagem"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Mensagem) == 0 {
		return ""
	}
	var msg string
	if err := json.Unmarshal(envelope.Mensagem, &msg); err != nil {
		return ""
	}
	return msg
}

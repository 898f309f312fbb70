package console

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nao1215/petadmin/pkg/httpclient"
	"github.com/nao1215/petadmin/pkg/logger"
	"github.com/nao1215/petadmin/pkg/session"
)

const (
	// LoginPath はログインページのパス。リモートAPIのログインエンドポイントも同じパス。
	LoginPath = "/login"
	// LandingPath はログイン成功後の遷移先。
	LandingPath = "/usuario"
	// GenericLoginFailure はサーバーがメッセージを返さなかった場合のログイン失敗メッセージ。
	GenericLoginFailure = "CREDENCIAIS INVÁLIDAS"
)

// Navigator は画面遷移の境界。
type Navigator interface {
	Navigate(path string)
}

// NavigatorFunc は関数をNavigatorとして扱うためのアダプター。
type NavigatorFunc func(path string)

// Navigate はf(path)を呼ぶ。
func (f NavigatorFunc) Navigate(path string) { f(path) }

// Credentials はログインフォームの入力値。
type Credentials struct {
	Email string `json:"email"`
	Senha string `json:"senha"`
}

// LoginError はログインの失敗を表す。Messageはそのまま利用者に表示する。
type LoginError struct {
	Message string
	Err     error
}

func (e *LoginError) Error() string {
	return e.Message
}

func (e *LoginError) Unwrap() error { return e.Err }

// loginResponse はPOST /loginの成功レスポンス。
type loginResponse struct {
	Token   string `json:"token"`
	Usuario struct {
		Nome string `json:"nome"`
	} `json:"usuario"`
}

// Auth はログイン、ログアウト、認証エラー時のセッション破棄を行う。
type Auth struct {
	api      *httpclient.Client
	sessions session.Store

	// mu はセッションの確認と変更の組を直列化する。
	// 遅れて届いた認証エラーが新しいセッションを消さないようにする。
	mu sync.Mutex
}

// NewAuth は新しいAuthを生成する。
func NewAuth(api *httpclient.Client, sessions session.Store) *Auth {
	return &Auth{api: api, sessions: sessions}
}

// Login は資格情報をリモートAPIに送信し、成功すればセッションを初期化して
// LandingPathへ遷移する。失敗した場合は*LoginErrorを返し、セッションは変更しない。
func (a *Auth) Login(ctx context.Context, cred Credentials, nav Navigator) error {
	resp, err := a.api.Post(ctx, LoginPath, cred)
	if err != nil {
		msg, ok := httpclient.ServerMessage(err)
		if !ok {
			msg = GenericLoginFailure
		}
		return &LoginError{Message: msg, Err: err}
	}

	var body loginResponse
	if err := resp.DecodeJSON(&body); err != nil {
		return &LoginError{Message: GenericLoginFailure, Err: err}
	}
	if body.Token == "" {
		return &LoginError{Message: GenericLoginFailure, Err: errors.New("レスポンスにトークンがありません")}
	}

	a.mu.Lock()
	err = a.sessions.Initialize(ctx, body.Token, body.Usuario.Nome)
	a.mu.Unlock()
	if err != nil {
		return fmt.Errorf("セッションの保存に失敗: %w", err)
	}

	logger.FromContext(ctx).Info().Msg("login succeeded")
	nav.Navigate(LandingPath)
	return nil
}

// Logout はセッションを破棄してLoginPathへ遷移する。ネットワークにはアクセスしない。
// 呼び出し元のコンテキストが取り消されていても破棄は行う。
// 破棄に失敗してもログを残して遷移する。
func (a *Auth) Logout(ctx context.Context, nav Navigator) {
	a.mu.Lock()
	err := a.sessions.Clear(context.WithoutCancel(ctx))
	a.mu.Unlock()
	if err != nil {
		logger.FromContext(ctx).Error().Err(err).Msg("failed to clear session on logout")
	}
	nav.Navigate(LoginPath)
}

// HandleAuthFailure はerrがAuthenticationFailureであればセッションを破棄して
// LoginPathへ遷移し、trueを返す。
// 失敗したリクエストが現在のトークンで送信されていた場合だけ破棄するため、
// 同時に届いた複数の失敗やログアウト後に届いた失敗を重ねて処理しても結果は変わらない。
// 再ログイン後に届いた古い失敗では新しいセッションを残したまま遷移せずfalseを返すので、
// 呼び出し元は通常のエラーとして表示する。認証エラー以外でもfalseを返す。
func (a *Auth) HandleAuthFailure(ctx context.Context, err error, nav Navigator) bool {
	var authErr *httpclient.AuthenticationFailure
	if !errors.As(err, &authErr) {
		return false
	}

	log := logger.FromContext(ctx)
	a.mu.Lock()
	cur, ok, cerr := a.sessions.Current(ctx)
	switch {
	case cerr != nil:
		log.Error().Err(cerr).Msg("failed to read session on authentication failure")
	case ok && authErr.IssuedWith(cur.Token):
		if err := a.sessions.Clear(context.WithoutCancel(ctx)); err != nil {
			log.Error().Err(err).Msg("failed to clear session on authentication failure")
		} else {
			log.Warn().Int("status", authErr.StatusCode).Msg("session invalidated by remote API")
		}
	case ok:
		a.mu.Unlock()
		log.Info().Int("status", authErr.StatusCode).Msg("ignored authentication failure from a previous session")
		return false
	}
	a.mu.Unlock()

	nav.Navigate(LoginPath)
	return true
}

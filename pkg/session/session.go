package session

import (
	"context"
	"errors"
	"sync"

	"github.com/nao1215/petadmin/pkg/event"
)

// DefaultDisplayName は表示名が与えられなかった場合に使用する表示名。
const DefaultDisplayName = "Usuário"

// ErrEmptyToken は空のトークンでセッションを初期化しようとしたことを表す。
var ErrEmptyToken = errors.New("セッショントークンが空です")

// Session は認証済みの識別情報を表す。
type Session struct {
	// Token はリモートAPIが発行した不透明なベアラートークン。
	Token string
	// DisplayName は画面に表示する利用者名。
	DisplayName string
}

// Present はセッションが有効なトークンを持つかどうかを返す。
func (s Session) Present() bool {
	return s.Token != ""
}

// Reader はセッションの読み取り専用ビュー。
// ゲートウェイクライアントとルートガードはこれだけに依存する。
type Reader interface {
	// Current は現在のセッションを返す。存在しない場合は第2戻り値がfalseになる。
	// セッションが無いことはエラーではない。
	Current(ctx context.Context) (Session, bool, error)
}

// Store はセッションの保存先。
type Store interface {
	Reader
	// Initialize はトークンと表示名を保存し、以前のセッションを丸ごと置き換える。
	Initialize(ctx context.Context, token, displayName string) error
	// Clear はセッションを破棄する。セッションが無い場合は何もしない。
	Clear(ctx context.Context) error
	// Subscribe はセッション変化の通知を受け取る関数を登録する。
	// 通知は状態が変化した順に同期的に届く。購読者からCurrentは呼べるが、
	// InitializeやClearを呼んではならない。
	// 戻り値の関数を呼ぶと登録を解除する。
	Subscribe(fn func(*event.Event)) (unsubscribe func())
}

// normalize はInitializeの入力を検証し、保存する値を決める。
func normalize(token, displayName string) (Session, error) {
	if token == "" {
		return Session{}, ErrEmptyToken
	}
	if displayName == "" {
		displayName = DefaultDisplayName
	}
	return Session{Token: token, DisplayName: displayName}, nil
}

// broadcaster は購読者への通知を管理する。
type broadcaster struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]func(*event.Event)
}

// Subscribe は通知関数を登録する。
func (b *broadcaster) Subscribe(fn func(*event.Event)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs == nil {
		b.subs = make(map[int]func(*event.Event))
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
		})
	}
}

// publish は購読者全員にイベントを届ける。
// 購読者の呼び出し中は購読者一覧のロックを保持しないため、購読者から再登録できる。
func (b *broadcaster) publish(eventType event.Type, data any) error {
	ev, err := event.New(eventType, data)
	if err != nil {
		return err
	}

	b.mu.Lock()
	subs := make([]func(*event.Event), 0, len(b.subs))
	for _, fn := range b.subs {
		subs = append(subs, fn)
	}
	b.mu.Unlock()

	for _, fn := range subs {
		fn(ev)
	}
	return nil
}

// publishInitialized はSessionInitializedを通知する。
func (b *broadcaster) publishInitialized(s Session) error {
	return b.publish(event.TypeSessionInitialized, event.SessionInitializedData{DisplayName: s.DisplayName})
}

// publishCleared はSessionClearedを通知する。
func (b *broadcaster) publishCleared(prev Session) error {
	return b.publish(event.TypeSessionCleared, event.SessionClearedData{PreviousDisplayName: prev.DisplayName})
}

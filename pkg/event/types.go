// Package event はセッション状態の変化を購読者に伝える通知イベントを定義する。
package event

import (
	"encoding/json"
	"time"
)

// Type はイベントの種類を表す。
type Type string

const (
	// TypeSessionInitialized はログインによりセッションが確立されたことを表す。
	TypeSessionInitialized Type = "SessionInitialized"
	// TypeSessionCleared はセッションが破棄されたことを表す。
	TypeSessionCleared Type = "SessionCleared"
)

// Event はセッション状態の変化を表す不変の通知レコード。
// セッションストアが状態を変更したときにのみ発行される。
type Event struct {
	// ID はイベントの一意識別子（UUID）。
	ID string `json:"id"`
	// EventType はイベントの種類。
	EventType Type `json:"event_type"`
	// Data はイベント固有のデータ（JSON形式）。
	Data json.RawMessage `json:"data"`
	// CreatedAt はイベントが作成された日時。
	CreatedAt time.Time `json:"created_at"`
}

// SessionInitializedData はSessionInitializedイベントのデータ。
// トークン自体は通知に含めない。
type SessionInitializedData struct {
	// DisplayName はログインしたユーザーの表示名。
	DisplayName string `json:"display_name"`
}

// SessionClearedData はSessionClearedイベントのデータ。
type SessionClearedData struct {
	// PreviousDisplayName は破棄されたセッションの表示名。
	PreviousDisplayName string `json:"previous_display_name"`
}

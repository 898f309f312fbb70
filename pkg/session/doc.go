// Package session は認証済みオペレーターのセッション（トークンと表示名）を保持する。
//
// トークンと表示名は常に一組として書き込まれ、一組として破棄される。
// SQLiteStoreはプロセスの再起動後もセッションを復元できる永続ストアで、
// MemoryStoreはテスト用の差し替え実装である。状態が実際に変化したときだけ
// 購読者へevent.Eventが通知される。
//
// 同じファイルを複数プロセスで共有した場合のロックは行わず、最後の書き込みが勝つ。
package session

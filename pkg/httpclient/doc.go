// Package httpclient はリモートAPIを呼び出すゲートウェイクライアントを提供する。
//
// コンソールのすべての画面がこのクライアントを共有する。送信前にセッションストアを
// 参照してベアラートークンを付与し、受信したレスポンスはすべて呼び出し元に渡る前に
// ステータスコードで分類される。401/403はAuthenticationFailure、その他の2xx以外は
// RequestFailure、通信自体の失敗はNetworkErrorとしてエラー経路で返す。
//
// クライアントはセッションの破棄や画面遷移を行わない。認証失敗への対応は呼び出し側の
// 責務である。リトライ、キャッシュ、重複排除、独自のタイムアウトは持たない。
package httpclient

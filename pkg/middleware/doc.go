// Package middleware はコンソールと開発用APIで使用するGinミドルウェアを提供する。
//
// RouteGuardはコンソールの保護ページをセッションの有無で制御する。これは画面遷移の
// 利便のためのゲートであり、セキュリティ境界ではない。認証の強制はリモートAPI側の
// JWTAuthが担う。そのほか構造化ログ、パニックリカバリ、CORSを含む。
package middleware

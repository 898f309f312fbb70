// Package devapi は管理コンソールの開発用リモートAPIを提供する。
//
// 利用者・動物・養子縁組履歴をSQLiteに保存し、コンソールが期待する
// エンドポイントとレスポンス形式（{"mensagem": ...}）で応答する。
// POST /loginでJWTを発行し、それ以外の操作はJWTで保護する。
// ローカル開発とテストのための代役であり、本番のAPIではない。
package devapi

// Package console は養子縁組管理コンソールのWebアプリケーションを提供する。
//
// 利用者はブラウザからlocalhostのコンソールにアクセスし、コンソールが
// リモートAPIを呼び出す。ログイン・ログアウトの手順、保護ページの表示、
// 認証エラー時のセッション破棄はこのパッケージが担う。
// リモートAPIとの通信はpkg/httpclient、セッションはpkg/sessionに委ねる。
package console

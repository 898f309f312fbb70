// Package metrics はコンソールが公開するPrometheusメトリクスを定義する。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nao1215/petadmin/pkg/httpclient"
)

// Gateway はゲートウェイクライアントのリクエスト結果を数える。
// httpclient.Observerを満たす。
type Gateway struct {
	requests *prometheus.CounterVec
}

var _ httpclient.Observer = (*Gateway)(nil)

// NewGateway はカウンタを生成してregに登録する。
func NewGateway(reg prometheus.Registerer) *Gateway {
	g := &Gateway{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "petadmin",
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "Remote API requests by method and outcome.",
		}, []string{"method", "outcome"}),
	}
	reg.MustRegister(g.requests)
	return g
}

// Observe はリクエスト1件の結果を記録する。
func (g *Gateway) Observe(method string, outcome httpclient.Outcome) {
	g.requests.WithLabelValues(method, string(outcome)).Inc()
}

// Package metrics Prometheus 指标
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 登录结果标签
const (
	LoginSuccess        = "success"
	LoginBadCredentials = "bad_credentials"
	LoginLocked         = "locked"
	LoginCaptcha        = "captcha"
	LoginDisabled       = "disabled"
	LoginError          = "error"
)

// 防护拒绝标签
const (
	GuardRateLimit    = "rate_limit"
	GuardRepeatSubmit = "repeat_submit"
	GuardPermission   = "permission"
)

// 会话吊销原因标签
const (
	RevokeLogout  = "logout"
	RevokeSelf    = "self"
	RevokeOthers  = "others"
	RevokeForce   = "force"
	RevokeRefresh = "refresh"
)

// Metrics 全部指标；nil 接收者上的方法都是空操作
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	LoginAttemptsTotal   *prometheus.CounterVec
	GuardRejectionsTotal *prometheus.CounterVec
	SessionsRevokedTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics 创建并注册指标，registry 为空时新建
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "admin_auth_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "admin_auth_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		LoginAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "admin_auth_login_attempts_total",
				Help: "Login attempts by result",
			},
			[]string{"result"},
		),
		GuardRejectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "admin_auth_guard_rejections_total",
				Help: "Requests rejected by request guards",
			},
			[]string{"guard"},
		),
		SessionsRevokedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "admin_auth_sessions_revoked_total",
				Help: "Revoked sessions by reason",
			},
			[]string{"reason"},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.LoginAttemptsTotal,
		m.GuardRejectionsTotal,
		m.SessionsRevokedTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler /metrics 端点
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveHTTP 记录一次 HTTP 请求
func (m *Metrics) ObserveHTTP(method, path string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

// ObserveLogin 记录登录结果
func (m *Metrics) ObserveLogin(result string) {
	if m == nil {
		return
	}
	m.LoginAttemptsTotal.WithLabelValues(result).Inc()
}

// ObserveGuardRejection 记录防护拒绝
func (m *Metrics) ObserveGuardRejection(guard string) {
	if m == nil {
		return
	}
	m.GuardRejectionsTotal.WithLabelValues(guard).Inc()
}

// ObserveRevocation 记录会话吊销
func (m *Metrics) ObserveRevocation(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SessionsRevokedTotal.WithLabelValues(reason).Add(float64(n))
}

package ratelimit

import "github.com/prometheus/client_golang/prometheus"

var (
	requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rate_limit_requests_total",
		Help: "Requests seen by the rate limiter middleware, by domain.",
	}, []string{"domain"})
	exceededTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rate_limit_exceeded_total",
		Help: "Requests rejected for exceeding a bucket, by limit type and domain.",
	}, []string{"limit_type", "domain"})
	bytesBlockedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rate_limit_bytes_blocked_total",
		Help: "Bytes of the cached response size blocked by the resource bucket, by domain.",
	}, []string{"domain"})
)

func init() {
	prometheus.MustRegister(requestsTotal, exceededTotal, bytesBlockedTotal)
}

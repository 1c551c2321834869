package api

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"
)

// FailureCounter counts recent failed logins per client IP.
// *PostgresAuditor implements it.
type FailureCounter interface {
	CountLoginFailures(ctx context.Context, ip net.IP, since time.Time) (int, error)
}

func (h *Handler) checkLoginIPThrottle(ctx context.Context, ip net.IP, now time.Time) (bool, time.Duration, error) {
	if h.failures == nil || ip == nil || h.cfg.LoginIPMax <= 0 {
		return false, 0, nil
	}
	count, err := h.failures.CountLoginFailures(ctx, ip, now.Add(-h.cfg.LoginIPWindow))
	if err != nil {
		return false, 0, err
	}
	if count >= h.cfg.LoginIPMax {
		return true, h.cfg.LoginIPWindow, nil
	}
	return false, 0, nil
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	if retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.FormatInt(int64(retryAfter.Seconds()), 10))
	}
	writeError(w, http.StatusTooManyRequests, "rate_limited", "too many attempts")
}

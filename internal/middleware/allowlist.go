package middleware

import (
	"net"
	"net/http"
	"os"
	"strings"
	"sync"

	"cdb-features/internal/logger"
)

// 文档注释：来源地址白名单
// 背景：要素服务通常只对渲染节点所在网段开放；未启用时直通。
// 约束：ACCESS_ALLOW_IPS / ACCESS_ALLOW_CIDRS 逗号分隔，支持 v4/v6；ACCESS_REAL_IP_HEADER 指定上游真实 IP 头。
type AllowList struct {
	mu           sync.RWMutex
	ips          map[string]struct{}
	cidrs        []*net.IPNet
	realIPHeader string
}

func NewAllowList(ips, cidrs []string, realIPHeader string) *AllowList {
	a := &AllowList{ips: map[string]struct{}{}, realIPHeader: realIPHeader}
	a.Add(ips, cidrs)
	return a
}

// AllowListFromEnv：ACCESS_ALLOW_ENABLE 不为 true 时返回 nil
func AllowListFromEnv() *AllowList {
	if os.Getenv("ACCESS_ALLOW_ENABLE") != "true" {
		return nil
	}
	ips := splitList(os.Getenv("ACCESS_ALLOW_IPS"))
	if os.Getenv("ACCESS_ALLOW_LOCAL") == "true" {
		ips = append(ips, "127.0.0.1", "::1")
	}
	return NewAllowList(ips, splitList(os.Getenv("ACCESS_ALLOW_CIDRS")), strings.TrimSpace(os.Getenv("ACCESS_REAL_IP_HEADER")))
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Add：追加地址与网段；无法解析的条目忽略
func (a *AllowList) Add(ips, cidrs []string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, s := range ips {
		if ip := net.ParseIP(s); ip != nil {
			a.ips[ip.String()] = struct{}{}
		}
	}
	for _, c := range cidrs {
		if _, n, err := net.ParseCIDR(c); err == nil {
			a.cidrs = append(a.cidrs, n)
		}
	}
}

func (a *AllowList) allowed(ip net.IP) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if _, ok := a.ips[ip.String()]; ok {
		return true
	}
	for _, n := range a.cidrs {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// clientIP：优先取指定头中首个有效 IP，否则取 RemoteAddr
func (a *AllowList) clientIP(r *http.Request) net.IP {
	if a.realIPHeader != "" {
		if raw := r.Header.Get(a.realIPHeader); raw != "" {
			if ip := net.ParseIP(strings.TrimSpace(strings.Split(raw, ",")[0])); ip != nil {
				return ip
			}
		}
	}
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return net.ParseIP(host)
}

// Wrap：a 为 nil 时直通
func (a *AllowList) Wrap(next http.Handler) http.Handler {
	if a == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := a.clientIP(r)
		if ip == nil || !a.allowed(ip) {
			logger.L().Debug("access_block", "remote", r.RemoteAddr)
			w.Header().Set("content-type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"error":"forbidden"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

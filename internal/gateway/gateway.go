package gateway

import (
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"
	"time"

	"minimart/internal/util"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ParseUsers parses a credential table of the form "user:pass,user2:pass2".
func ParseUsers(s string) map[string]string {
	users := map[string]string{}
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 {
			continue
		}
		users[parts[0]] = parts[1]
	}
	return users
}

// basicAuth returns the authenticated username, if any. Password
// comparison is constant time.
func basicAuth(r *http.Request, users map[string]string) (string, bool) {
	a := r.Header.Get("Authorization")
	if !strings.HasPrefix(a, "Basic ") {
		return "", false
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(a, "Basic "))
	if err != nil {
		return "", false
	}
	creds := strings.SplitN(string(raw), ":", 2)
	if len(creds) != 2 {
		return "", false
	}
	user, pass := creds[0], creds[1]
	expected, ok := users[user]
	if !ok {
		return "", false
	}
	if subtle.ConstantTimeCompare([]byte(pass), []byte(expected)) != 1 {
		return "", false
	}
	return user, true
}

// AuthMiddleware protects /api/* and sets the X-User header when auth
// succeeds. The header is always overwritten so a client can never
// smuggle its own identity through.
func AuthMiddleware(users map[string]string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/api/") {
			next.ServeHTTP(w, r)
			return
		}
		if user, ok := basicAuth(r, users); ok {
			r2 := r.Clone(r.Context())
			r2.Header.Set("X-User", user)
			next.ServeHTTP(w, r2)
			return
		}
		w.Header().Set("WWW-Authenticate", `Basic realm="minimart"`)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte("unauthorized"))
	})
}

// ProxyHandler builds a reverse proxy to base, stripping stripPrefix
// from the request path first.
func ProxyHandler(base *url.URL, stripPrefix string) http.Handler {
	proxy := httputil.NewSingleHostReverseProxy(base)
	origDirector := proxy.Director
	proxy.Director = func(r *http.Request) {
		origDirector(r)
		if strings.HasPrefix(r.URL.Path, stripPrefix) {
			r.URL.Path = strings.TrimPrefix(r.URL.Path, stripPrefix)
			if !strings.HasPrefix(r.URL.Path, "/") {
				r.URL.Path = "/" + r.URL.Path
			}
		}
	}
	return proxy
}

// New builds the gateway handler: Basic auth on /api/*, X-User
// injection, and prefix-stripping proxies to the two services.
func New(users map[string]string, catalogBase, ordersBase *url.URL) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/whoami", func(w http.ResponseWriter, r *http.Request) {
		user, ok := basicAuth(r, users)
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(user))
	})
	mux.Handle("/api/catalog/", ProxyHandler(catalogBase, "/api/catalog"))
	mux.Handle("/api/orders/", ProxyHandler(ordersBase, "/api/orders"))

	return metricsMiddleware(AuthMiddleware(users, mux))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		status := strconv.Itoa(rec.status)
		util.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path, status).
			Observe(time.Since(start).Seconds())
		util.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
	})
}

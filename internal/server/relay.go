package server

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// hopHeaders are stripped when forwarding in either direction.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// relay forwards requests under /relay/ to a fixed upstream and stamps
// permissive CORS headers on the response so browser pages can call vendor
// APIs that do not allow cross-origin requests themselves.
type relay struct {
	upstream *url.URL
	client   *http.Client
	logger   *slog.Logger
}

func newRelay(upstream string, logger *slog.Logger) (*relay, error) {
	u, err := url.Parse(upstream)
	if err != nil {
		return nil, err
	}
	return &relay{upstream: u, client: http.DefaultClient, logger: logger}, nil
}

func (p *relay) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	setCORS(w.Header())
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	target := *p.upstream
	target.Path = strings.TrimRight(target.Path, "/") + "/" + strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, "/relay"), "/")
	target.RawQuery = r.URL.RawQuery

	req, err := http.NewRequestWithContext(r.Context(), r.Method, target.String(), r.Body)
	if err != nil {
		http.Error(w, "bad relay request: "+err.Error(), http.StatusBadRequest)
		return
	}
	copyHeaders(req.Header, r.Header)
	req.Header.Del("Origin")
	req.Header.Del("Referer")

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Warn("relay upstream failed",
			slog.String("target", target.String()),
			slog.String("error", err.Error()))
		http.Error(w, "upstream unreachable: "+err.Error(), http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	copyHeaders(w.Header(), resp.Header)
	setCORS(w.Header())
	w.WriteHeader(resp.StatusCode)

	// Stream the body through so SSE responses relay unbuffered.
	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 32*1024)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if err != nil {
			return
		}
	}
}

func setCORS(h http.Header) {
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "*")
	h.Set("Access-Control-Max-Age", "86400")
}

func copyHeaders(dst, src http.Header) {
	for k, vals := range src {
		if isHopHeader(k) {
			continue
		}
		for _, v := range vals {
			dst.Add(k, v)
		}
	}
}

func isHopHeader(name string) bool {
	for _, h := range hopHeaders {
		if strings.EqualFold(name, h) {
			return true
		}
	}
	return false
}

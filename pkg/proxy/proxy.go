package proxy

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"

	"github.com/Evoker-Industries/Janus/pkg/proxy/middleware"
	"github.com/Evoker-Industries/Janus/pkg/stats"
	"github.com/Evoker-Industries/Janus/pkg/upstream"
)

// maxReplayableBody bounds how much request body is buffered to make a
// retry possible. Larger bodies stream straight through and are never
// retried.
const maxReplayableBody = 1 << 20

// hopHeaders are stripped in both directions, per RFC 9110 section 7.6.1.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// proxyRoute forwards one request to the route's upstream. A dispatch that
// fails on connect or timeout is retried once against a different target;
// every selected target is released exactly once.
func (rt *Router) proxyRoute(w http.ResponseWriter, r *http.Request, route *route, suffix string) {
	clientIP := clientIP(r)
	requestID := middleware.GetRequestID(r.Context())
	name := route.cfg.Upstream

	ctx := r.Context()
	if route.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, route.timeout)
		defer cancel()
	}

	body, replayable, err := bufferBody(r)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	var previous *upstream.Target
	var previousErr error
	for attempt := 0; attempt < 2; attempt++ {
		var target *upstream.Target
		if previous == nil {
			target, err = rt.pool.Select(name, clientIP)
			if err != nil {
				rt.writeSelectError(w, r, name, err)
				return
			}
		} else {
			target, err = rt.pool.SelectAlternate(name, clientIP, previous)
			if err != nil {
				// No different target to retry on; report the
				// failure that triggered the retry.
				rt.writeDispatchError(w, r, name, previousErr)
				return
			}
		}

		resp, err := rt.dispatch(ctx, r, route, target, suffix, clientIP, requestID, body)
		if err == nil {
			rt.setRouteInfo(r, "proxy", name, target.Address)
			rt.relay(w, resp)
			rt.pool.Release(target)
			if rt.metrics != nil {
				rt.metrics.RecordUpstreamRequest(name, target.Address, stats.StatusClass(resp.StatusCode))
			}
			return
		}

		rt.pool.Release(target)
		target.RecordFailure()
		if rt.tracker != nil {
			rt.tracker.RecordUpstreamFailure(name)
		}
		rt.logger.Warn("upstream dispatch failed",
			slog.String("upstream", name),
			slog.String("target", target.Address),
			slog.String("request_id", requestID),
			slog.String("error", err.Error()))

		if attempt == 0 && replayable && retryable(err) && ctx.Err() == nil {
			if rt.metrics != nil {
				rt.metrics.RecordRetry(name)
			}
			previous = target
			previousErr = err
			continue
		}

		rt.writeDispatchError(w, r, name, err)
		return
	}
}

// dispatch sends the request to one target and returns its response.
func (rt *Router) dispatch(ctx context.Context, r *http.Request, route *route, target *upstream.Target, suffix, clientIP, requestID string, body []byte) (*http.Response, error) {
	outURL := url.URL{
		Scheme:   "http",
		Host:     target.Address,
		Path:     route.forwardPath(r.URL.Path, suffix),
		RawQuery: r.URL.RawQuery,
	}

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	} else if r.Body != nil && r.ContentLength != 0 {
		bodyReader = r.Body
	}

	out, err := http.NewRequestWithContext(ctx, r.Method, outURL.String(), bodyReader)
	if err != nil {
		return nil, err
	}
	out.ContentLength = r.ContentLength

	copyHeaders(out.Header, r.Header)
	out.Host = r.Host
	appendForwardedHeaders(out, r, clientIP)
	for name, value := range route.expandHeaders(r, clientIP, requestID) {
		out.Header.Set(name, value)
	}

	return rt.transport.RoundTrip(out)
}

// relay copies the upstream response to the client verbatim, minus
// hop-by-hop headers.
func (rt *Router) relay(w http.ResponseWriter, resp *http.Response) {
	defer resp.Body.Close()

	copyHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)
}

func (rt *Router) writeSelectError(w http.ResponseWriter, r *http.Request, name string, err error) {
	reason := "select"
	status := http.StatusBadGateway
	if errors.Is(err, upstream.ErrNoHealthyTarget) {
		reason = "no_healthy_target"
		status = http.StatusServiceUnavailable
	}
	if rt.metrics != nil {
		rt.metrics.RecordUpstreamError(name, reason)
	}
	rt.setRouteInfo(r, "proxy", name, "")
	http.Error(w, http.StatusText(status), status)
}

func (rt *Router) writeDispatchError(w http.ResponseWriter, r *http.Request, name string, err error) {
	status := http.StatusBadGateway
	reason := "connect"
	if isTimeout(err) {
		status = http.StatusGatewayTimeout
		reason = "timeout"
	}
	if rt.metrics != nil {
		rt.metrics.RecordUpstreamError(name, reason)
	}
	rt.setRouteInfo(r, "proxy", name, "")
	http.Error(w, http.StatusText(status), status)
}

// setRouteInfo records the dispatch decision for the access log middleware.
func (rt *Router) setRouteInfo(r *http.Request, kind, upstreamName, target string) {
	if info := middleware.RouteInfoFrom(r.Context()); info != nil {
		info.Kind = kind
		info.Upstream = upstreamName
		info.Target = target
	}
}

// bufferBody reads small request bodies into memory so a failed dispatch
// can be replayed. Bodies of unknown or large size stream through and
// disable the retry.
func bufferBody(r *http.Request) (body []byte, replayable bool, err error) {
	if r.Body == nil || r.ContentLength == 0 {
		return nil, true, nil
	}
	if r.ContentLength < 0 || r.ContentLength > maxReplayableBody {
		return nil, false, nil
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, r.ContentLength))
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func copyHeaders(dst, src http.Header) {
	for name, values := range src {
		for _, value := range values {
			dst.Add(name, value)
		}
	}
	for _, name := range hopHeaders {
		dst.Del(name)
	}
}

func appendForwardedHeaders(out *http.Request, r *http.Request, clientIP string) {
	prior := r.Header.Get("X-Forwarded-For")
	if prior != "" {
		out.Header.Set("X-Forwarded-For", prior+", "+clientIP)
	} else {
		out.Header.Set("X-Forwarded-For", clientIP)
	}
	out.Header.Set("X-Forwarded-Host", r.Host)
	out.Header.Set("X-Forwarded-Proto", "http")
}

// clientIP returns the request's client IP without the ephemeral port.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// retryable reports whether the dispatch failure is worth one retry
// against a different target: connection failures and timeouts qualify,
// anything after the request reached the backend does not.
func retryable(err error) bool {
	if isTimeout(err) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	return strings.Contains(err.Error(), "connection refused")
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

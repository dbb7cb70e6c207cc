// Package network implements the network tool: HTTP requests, downloads and
// reachability checks restricted to http(s) and policed by domain lists and a
// response size cap.
package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/ChamsBouzaiene/agentcli/internal/engine"
	"github.com/ChamsBouzaiene/agentcli/internal/registry"
)

// Name is the tool name actions refer to.
const Name = "network"

const (
	MethodHTTPRequest  = "httpRequest"
	MethodDownloadFile = "downloadFile"
	MethodCheckURL     = "checkUrl"
)

const (
	DefaultMaxResponseSize int64 = 10 * 1024 * 1024
	DefaultTimeout               = 30 * time.Second
	DefaultRequestsPerSec        = 10

	maxRedirects = 10
)

// Policy restricts where requests may go and how much they may return.
type Policy struct {
	AllowedDomains  []string // empty = any domain not blocked
	BlockedDomains  []string
	MaxResponseSize int64
}

// Options configures a Tool.
type Options struct {
	Policy  Policy
	Client  *http.Client
	Limiter *rate.Limiter
	// Resolve maps a download destination to an absolute path, enforcing
	// the filesystem allow-list. Required for downloadFile.
	Resolve func(path string) (string, error)
}

// Tool is the network tool.
type Tool struct {
	policy  Policy
	client  *http.Client
	limiter *rate.Limiter
	resolve func(string) (string, error)
}

// New creates a network tool.
func New(opts Options) *Tool {
	p := opts.Policy
	if p.MaxResponseSize <= 0 {
		p.MaxResponseSize = DefaultMaxResponseSize
	}
	client := &http.Client{Timeout: DefaultTimeout}
	if opts.Client != nil {
		c := *opts.Client
		client = &c
	}
	limiter := opts.Limiter
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Limit(DefaultRequestsPerSec), DefaultRequestsPerSec)
	}
	t := &Tool{policy: p, client: client, limiter: limiter, resolve: opts.Resolve}
	client.CheckRedirect = t.checkRedirect
	return t
}

// checkRedirect applies the scheme and domain rules to every hop.
func (t *Tool) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return engine.Errorf(engine.KindNetwork, "stopped after %d redirects", maxRedirects)
	}
	_, err := t.checkURL(req.URL.String())
	return err
}

// Schema describes the tool's methods.
func Schema() registry.ToolSchema {
	target := registry.Param{Name: "url", Type: registry.TypeString, Required: true, Domain: registry.DomainURL}
	return registry.ToolSchema{
		Name:        Name,
		Description: "Make HTTP requests and download files",
		Methods: []registry.MethodSchema{
			{Name: MethodHTTPRequest, Description: "Send an HTTP request", Params: []registry.Param{
				target,
				{Name: "options", Type: registry.TypeObject, Description: `{"method","headers","body","query"}`},
			}},
			{Name: MethodDownloadFile, Description: "Download a URL to a file", Params: []registry.Param{
				target,
				{Name: "destination", Type: registry.TypeString, Required: true, Domain: registry.DomainPath},
				{Name: "overwrite", Type: registry.TypeBoolean},
			}},
			{Name: MethodCheckURL, Description: "Check whether a URL is reachable", Params: []registry.Param{target}},
		},
	}
}

// Check validates the URL against the scheme and domain rules.
func (t *Tool) Check(method string, params []string) ([]string, error) {
	if len(params) == 0 {
		return nil, nil
	}
	u, err := t.checkURL(params[0])
	if err != nil {
		return nil, err
	}
	if method == MethodDownloadFile && len(params) > 1 && t.resolve != nil {
		if _, err := t.resolve(params[1]); err != nil {
			return nil, err
		}
	}
	return warningsFor(u), nil
}

// Invoke runs a method.
func (t *Tool) Invoke(ctx context.Context, method string, params []string) (any, error) {
	get := func(i int) string {
		if i < len(params) {
			return params[i]
		}
		return ""
	}
	switch method {
	case MethodHTTPRequest:
		var opts RequestOptions
		if err := registry.ObjectParam(get(1), &opts); err != nil {
			return nil, engine.Wrap(engine.KindInvalidInput, method, err)
		}
		return t.HTTPRequest(ctx, get(0), opts)
	case MethodDownloadFile:
		overwrite, _ := strconv.ParseBool(get(2))
		return t.DownloadFile(ctx, get(0), get(1), overwrite)
	case MethodCheckURL:
		return t.CheckURL(ctx, get(0))
	}
	return nil, engine.Errorf(engine.KindInvalidInput, "unknown method %s", method)
}

func (t *Tool) checkURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return nil, engine.Errorf(engine.KindInvalidInput, "invalid url %q", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, engine.Errorf(engine.KindBlocked, "scheme %q is not allowed; use http or https", u.Scheme)
	}
	host := strings.ToLower(u.Hostname())
	for _, d := range t.policy.BlockedDomains {
		if domainMatch(host, d) {
			return nil, engine.Errorf(engine.KindAccessDenied, "domain %s is blocked", host)
		}
	}
	if len(t.policy.AllowedDomains) > 0 {
		allowed := false
		for _, d := range t.policy.AllowedDomains {
			if domainMatch(host, d) {
				allowed = true
				break
			}
		}
		if !allowed {
			return nil, engine.Errorf(engine.KindAccessDenied, "domain %s is not in the allowed list", host)
		}
	}
	return u, nil
}

// domainMatch reports whether host is domain or one of its subdomains.
func domainMatch(host, domain string) bool {
	domain = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(domain), "*."))
	if domain == "" {
		return false
	}
	return host == domain || strings.HasSuffix(host, "."+domain)
}

func warningsFor(u *url.URL) []string {
	if registry.IsPrivateHost(u.Hostname()) {
		return []string{fmt.Sprintf("target %q is a private address", u.Hostname())}
	}
	return nil
}

// RequestOptions tunes httpRequest.
type RequestOptions struct {
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body"`
	Query   map[string]string `json:"query"`
}

// Response is returned by httpRequest.
type Response struct {
	URL        string            `json:"url"`
	StatusCode int               `json:"statusCode"`
	Status     string            `json:"status"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
	Size       int64             `json:"size"`
	Duration   time.Duration     `json:"duration"`
	Warnings   []string          `json:"warnings,omitempty"`
}

// HTTPRequest sends one request. Non-2xx statuses are returned, not errors.
func (t *Tool) HTTPRequest(ctx context.Context, rawURL string, opts RequestOptions) (*Response, error) {
	u, err := t.checkURL(rawURL)
	if err != nil {
		return nil, err
	}
	if len(opts.Query) > 0 {
		q := u.Query()
		for k, v := range opts.Query {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}
	method := strings.ToUpper(opts.Method)
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if opts.Body != "" {
		body = strings.NewReader(opts.Body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, engine.Wrap(engine.KindInvalidInput, MethodHTTPRequest, err)
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := t.do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.ContentLength > t.policy.MaxResponseSize {
		return nil, t.tooLarge(u, resp.ContentLength)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, t.policy.MaxResponseSize+1))
	if err != nil {
		return nil, transportError(MethodHTTPRequest, err)
	}
	if int64(len(data)) > t.policy.MaxResponseSize {
		return nil, t.tooLarge(u, int64(len(data)))
	}
	return &Response{
		URL:        u.String(),
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Headers:    flatten(resp.Header),
		Body:       string(data),
		Size:       int64(len(data)),
		Duration:   time.Since(start),
		Warnings:   warningsFor(u),
	}, nil
}

// Download is returned by downloadFile.
type Download struct {
	URL         string        `json:"url"`
	Path        string        `json:"path"`
	Bytes       int64         `json:"bytes"`
	ContentType string        `json:"contentType,omitempty"`
	Duration    time.Duration `json:"duration"`
}

// DownloadFile streams rawURL into dest. The size cap is enforced while
// streaming; a partial file is removed on failure.
func (t *Tool) DownloadFile(ctx context.Context, rawURL, dest string, overwrite bool) (*Download, error) {
	u, err := t.checkURL(rawURL)
	if err != nil {
		return nil, err
	}
	if t.resolve == nil {
		return nil, engine.Errorf(engine.KindInternal, "downloads are not configured")
	}
	path, err := t.resolve(dest)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err == nil && !overwrite {
		return nil, engine.Errorf(engine.KindInvalidInput, "%s already exists", dest)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, engine.Wrap(engine.KindInvalidInput, MethodDownloadFile, err)
	}
	start := time.Now()
	resp, err := t.do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, engine.Errorf(engine.KindNotFound, "%s returned %s", u, resp.Status)
	case resp.StatusCode >= 300:
		return nil, engine.Errorf(engine.KindNetwork, "%s returned %s", u, resp.Status)
	}
	if resp.ContentLength > t.policy.MaxResponseSize {
		return nil, t.tooLarge(u, resp.ContentLength)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, engine.Wrap(engine.KindInternal, MethodDownloadFile, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".download-*")
	if err != nil {
		return nil, engine.Wrap(engine.KindInternal, MethodDownloadFile, err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, io.LimitReader(resp.Body, t.policy.MaxResponseSize+1))
	closeErr := tmp.Close()
	if err != nil {
		return nil, transportError(MethodDownloadFile, err)
	}
	if n > t.policy.MaxResponseSize {
		return nil, t.tooLarge(u, n)
	}
	if closeErr != nil {
		return nil, engine.Wrap(engine.KindInternal, MethodDownloadFile, closeErr)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return nil, engine.Wrap(engine.KindInternal, MethodDownloadFile, err)
	}
	return &Download{
		URL:         u.String(),
		Path:        path,
		Bytes:       n,
		ContentType: resp.Header.Get("Content-Type"),
		Duration:    time.Since(start),
	}, nil
}

// URLCheck is returned by checkUrl.
type URLCheck struct {
	URL           string        `json:"url"`
	Reachable     bool          `json:"reachable"`
	StatusCode    int           `json:"statusCode,omitempty"`
	ContentType   string        `json:"contentType,omitempty"`
	ContentLength int64         `json:"contentLength,omitempty"`
	LastModified  string        `json:"lastModified,omitempty"`
	Server        string        `json:"server,omitempty"`
	Duration      time.Duration `json:"duration"`
	Error         string        `json:"error,omitempty"`
	Warnings      []string      `json:"warnings,omitempty"`
}

// CheckURL sends a HEAD request. Transport failures mark the URL
// unreachable instead of failing.
func (t *Tool) CheckURL(ctx context.Context, rawURL string) (*URLCheck, error) {
	u, err := t.checkURL(rawURL)
	if err != nil {
		return nil, err
	}
	out := &URLCheck{URL: u.String(), Warnings: warningsFor(u)}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, u.String(), nil)
	if err != nil {
		return nil, engine.Wrap(engine.KindInvalidInput, MethodCheckURL, err)
	}
	start := time.Now()
	resp, err := t.do(ctx, req)
	out.Duration = time.Since(start)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		out.Error = err.Error()
		return out, nil
	}
	resp.Body.Close()

	out.Reachable = resp.StatusCode < 500
	out.StatusCode = resp.StatusCode
	out.ContentType = resp.Header.Get("Content-Type")
	out.ContentLength = resp.ContentLength
	out.LastModified = resp.Header.Get("Last-Modified")
	out.Server = resp.Header.Get("Server")
	return out, nil
}

func (t *Tool) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, transportError(req.Method, err)
	}
	return resp, nil
}

func (t *Tool) tooLarge(u *url.URL, size int64) error {
	return engine.Errorf(engine.KindTooLarge, "response from %s exceeds %d bytes (%d)", u.Host, t.policy.MaxResponseSize, size)
}

func transportError(op string, err error) error {
	var ne net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &ne) && ne.Timeout():
		return engine.Wrap(engine.KindTimeout, op, err)
	case errors.Is(err, context.Canceled):
		return err
	}
	// Policy refusals from checkRedirect keep their kind.
	var policy *engine.Error
	if errors.As(err, &policy) {
		return policy
	}
	return engine.Wrap(engine.KindNetwork, op, err)
}

func flatten(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = strings.Join(v, ", ")
	}
	return out
}

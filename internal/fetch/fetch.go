// Package fetch retrieves web pages for the extract command and reduces them
// to plain text.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"syscall"
	"time"

	"clawderous/internal/logging"

	"go.uber.org/zap"
)

const userAgent = "Clawderous/1.0"

// ErrBlockedAddress is returned for hosts that resolve to loopback, private,
// link-local or other non-public addresses.
var ErrBlockedAddress = errors.New("address not allowed")

// sharedAddressSpace is the carrier-grade NAT range, which netip does not
// classify as private.
var sharedAddressSpace = netip.MustParsePrefix("100.64.0.0/10")

// Error is a failed fetch: a non-2xx status or a transport failure.
type Error struct {
	URL        string
	StatusCode int
	Status     string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: HTTP %s", e.URL, e.Status)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// UserMessage describes the failure without transport internals.
func (e *Error) UserMessage() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("the server answered HTTP %s", e.Status)
	case errors.Is(e.Err, ErrBlockedAddress):
		return "that address is not reachable from here"
	case errors.Is(e.Err, context.DeadlineExceeded):
		return "the page took too long to respond"
	default:
		return "the page could not be reached"
	}
}

type HTTPFetcher struct {
	client       *http.Client
	maxBytes     int64
	logger       *zap.Logger
	allowPrivate bool
}

func NewHTTPFetcher(timeout time.Duration, maxBytes int, logger *zap.Logger) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	if maxBytes <= 0 {
		maxBytes = 2 << 20
	}
	logger = logging.OrNop(logger)
	f := &HTTPFetcher{maxBytes: int64(maxBytes), logger: logger}
	dialer := &net.Dialer{Timeout: timeout, Control: f.checkDial}
	f.client = &http.Client{
		Timeout: timeout,
		// No proxy: the dial check must see the real destination.
		Transport: &http.Transport{
			DialContext:         dialer.DialContext,
			TLSHandshakeTimeout: timeout,
			MaxIdleConns:        10,
			IdleConnTimeout:     30 * time.Second,
		},
	}
	return f
}

// checkDial runs for every connection, redirects included, after DNS
// resolution.
func (f *HTTPFetcher) checkDial(_, address string, _ syscall.RawConn) error {
	if f.allowPrivate {
		return nil
	}
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return err
	}
	if !PublicAddr(ip) {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, ip)
	}
	return nil
}

// PublicAddr reports whether ip is a globally routable unicast address.
func PublicAddr(ip netip.Addr) bool {
	ip = ip.Unmap()
	switch {
	case !ip.IsValid(),
		ip.IsUnspecified(),
		ip.IsLoopback(),
		ip.IsPrivate(),
		ip.IsLinkLocalUnicast(),
		ip.IsLinkLocalMulticast(),
		ip.IsInterfaceLocalMulticast(),
		ip.IsMulticast(),
		sharedAddressSpace.Contains(ip):
		return false
	}
	return ip.IsGlobalUnicast()
}

// Fetch returns the raw body of url. Bodies beyond the size cap are cut.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", &Error{URL: url, Err: err}
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", &Error{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &Error{URL: url, StatusCode: resp.StatusCode, Status: resp.Status}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return "", &Error{URL: url, Err: err}
	}
	f.logger.Debug("fetched page", zap.String("url", url), zap.Int("bytes", len(body)))
	return string(body), nil
}

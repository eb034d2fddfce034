// Package report talks to the wholesale DLR reporting service: an
// authenticated-session HTTP client for downloading per-window exports, and a
// decoder turning export payloads into raw records. The pipeline core only
// sees the Fetch and Decode capabilities.
package report

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
)

// Service paths.
const (
	loginPath  = "/Home/CheckLogin"
	exportPath = "/DLRWholesaleReport/Export"
)

// DefaultFetchTimeout bounds one export download. Exports for a full window
// can be large, so this is deliberately generous.
const DefaultFetchTimeout = 120 * time.Second

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

// Filter parameters the export endpoint requires even when unused. Sending
// them blank selects everything, matching the service's own UI.
var exportFilters = []string{
	"SenderID", "DLRStatus", "PhoneNumber", "SMSID", "VendorSMSID",
	"CountryID", "VendorAccountID", "CustomerSMPPAccountID",
	"ErrorDescription", "MCC", "MNC", "ExcludeCountryID",
	"ExcludeCustomerSMPPAccountID", "CustomerId",
}

// Client is an authenticated-session client for the reporting service.
type Client struct {
	baseURL  string
	username string
	userKey  string
	client   *http.Client
	logger   *log.Logger

	loggedIn bool
}

// ClientOptions configures a Client.
type ClientOptions struct {
	// BaseURL is the service root, e.g. "http://reports.example.net:5660".
	BaseURL string
	// Username and UserKey are the login credentials.
	Username string
	UserKey  string
	// FetchTimeout bounds one export download. Defaults to DefaultFetchTimeout.
	FetchTimeout time.Duration
	Logger       *log.Logger
}

// NewClient creates a Client with a fresh cookie jar. Credentials are
// required; the session is established lazily on first use.
func NewClient(opts ClientOptions) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if opts.Username == "" || opts.UserKey == "" {
		return nil, fmt.Errorf("%w: missing credentials", ErrAuthFailed)
	}

	timeout := opts.FetchTimeout
	if timeout == 0 {
		timeout = DefaultFetchTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	return &Client{
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		username: opts.Username,
		userKey:  opts.UserKey,
		client:   &http.Client{Jar: jar, Timeout: timeout},
		logger:   logger,
	}, nil
}

// Login performs the handshake: fetch the landing page, extract the
// anti-forgery token, and post the credentials with the session cookie jar.
func (c *Client) Login(ctx context.Context) error {
	page, err := c.get(ctx, c.baseURL+"/")
	if err != nil {
		return fmt.Errorf("%w: load landing page: %v", ErrAuthFailed, err)
	}

	token, err := extractVerificationToken(page)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}

	form := url.Values{}
	form.Set("Username", c.username)
	form.Set("UserKey", c.userKey)
	form.Set("RememberMe", "true")
	form.Set(verificationTokenField, token)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+loginPath,
		strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%w: build login request: %v", ErrAuthFailed, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("RequestVerificationToken", token)
	req.Header.Set("Referer", c.baseURL+"/")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: login returned status %d", ErrAuthFailed, resp.StatusCode)
	}

	c.loggedIn = true
	c.logger.Printf("session established for %s", c.username)
	return nil
}

// Fetch downloads the export for one window. Both bounds are inclusive and
// passed through in the service's expected local format. The session is
// established on first call.
func (c *Client) Fetch(ctx context.Context, start, end time.Time) ([]byte, error) {
	if !c.loggedIn {
		if err := c.Login(ctx); err != nil {
			return nil, err
		}
	}

	q := url.Values{}
	q.Set("StartDate", start.Format("2006-01-02 15:04:05"))
	q.Set("EndDate", end.Format("2006-01-02 15:04:05"))
	for _, f := range exportFilters {
		q.Set(f, "")
	}

	payload, err := c.get(ctx, c.baseURL+exportPath+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("download export: %w", err)
	}
	return payload, nil
}

func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}


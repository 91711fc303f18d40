package authsdk

import (
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"
)

// CSRFHeader carries the CSRF token on state-changing requests.
const CSRFHeader = "X-CSRF"

// SDKClient is a client for the Gatehouse authentication service.
//
// Sessions live in http-only cookies, so the client keeps a cookie jar and
// behaves like a browser: the access and refresh cookies set by sign-in are
// replayed on later calls. The CSRF token is fetched lazily before the first
// state-changing request.
type SDKClient struct {
	BaseURL    string
	HTTPClient *http.Client

	// ForwardedFor, when set, is sent as X-Forwarded-For. Tests use it to
	// pose as distinct callers.
	ForwardedFor string

	mu   sync.Mutex
	csrf string
}

// NewSDKClient creates a new auth service client with its own cookie jar.
func NewSDKClient(baseURL string) *SDKClient {
	jar, _ := cookiejar.New(nil)
	return &SDKClient{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
			Jar:     jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Cookie returns the named cookie the jar holds for the service, if any.
func (c *SDKClient) Cookie(name string) (*http.Cookie, bool) {
	if c.HTTPClient.Jar == nil {
		return nil, false
	}
	req, err := http.NewRequest(http.MethodGet, c.BaseURL, nil)
	if err != nil {
		return nil, false
	}
	for _, ck := range c.HTTPClient.Jar.Cookies(req.URL) {
		if ck.Name == name {
			return ck, true
		}
	}
	return nil, false
}

// SetCookie stores a cookie for the service in the jar.
func (c *SDKClient) SetCookie(ck *http.Cookie) {
	req, err := http.NewRequest(http.MethodGet, c.BaseURL, nil)
	if err != nil || c.HTTPClient.Jar == nil {
		return
	}
	c.HTTPClient.Jar.SetCookies(req.URL, []*http.Cookie{ck})
}

func (c *SDKClient) csrfToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.csrf
}

func (c *SDKClient) setCSRFToken(tok string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.csrf = tok
}

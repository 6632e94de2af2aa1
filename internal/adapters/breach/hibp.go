// Package breach checks candidate passwords against a breach corpus using
// the k-anonymity range API: only the first five hex characters of the
// SHA-1 digest ever leave the process.
package breach

import (
	"bufio"
	"context"
	"crypto/sha1"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultBaseURL = "https://api.pwnedpasswords.com/range"
	DefaultTimeout = 5 * time.Second
)

type Client struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
}

type Option func(*Client)

func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(url, "/") }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		userAgent:  "vigil-passcheck",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CheckPwned reports whether the password appears in the breach corpus and
// how many times. Network errors and non-200 responses fail open: the
// password is treated as not breached and the failure is logged. Breach
// screening must never block registration when the corpus is unreachable.
func (c *Client) CheckPwned(ctx context.Context, password string) (bool, int) {
	sum := sha1.Sum([]byte(password))
	digest := strings.ToUpper(fmt.Sprintf("%x", sum))
	prefix, suffix := digest[:5], digest[5:]

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+prefix, nil)
	if err != nil {
		log.Warn().Err(err).Msg("Breach check request build failed, treating as not breached")
		return false, 0
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Add-Padding", "true")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Warn().Err(err).Msg("Breach check unavailable, treating as not breached")
		return false, 0
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Warn().Int("status", resp.StatusCode).Msg("Breach check returned non-200, treating as not breached")
		return false, 0
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		rest, found := strings.CutPrefix(line, suffix+":")
		if !found {
			continue
		}
		count, err := strconv.Atoi(strings.TrimSpace(rest))
		if err != nil {
			continue
		}
		if count > 0 {
			return true, count
		}
		return false, 0
	}
	if err := scanner.Err(); err != nil {
		log.Warn().Err(err).Msg("Breach check response truncated, treating as not breached")
	}
	return false, 0
}

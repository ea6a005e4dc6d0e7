// Package collyclient implements the plain-HTTP byte fetcher using gocolly.
// It backs the metadata lister and the image downloader; rendered article
// fetches go through the headless package instead.
package collyclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Client implements crawler.ByteFetcher using a Colly collector.
type Client struct {
	cfg           Config
	baseCollector *colly.Collector
}

// New builds a Client with a pooled HTTP transport.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	c.WithTransport(newHTTPTransport())
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	c.SetRequestTimeout(cfg.Timeout)
	return &Client{cfg: cfg, baseCollector: c}
}

// Get executes a single HTTP GET and returns the body and status code.
// Non-2xx statuses are returned with the body and a nil error so the caller
// can apply its own status policy.
func (c *Client) Get(ctx context.Context, url string) ([]byte, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, fmt.Errorf("fetch %s: %w", url, err)
	}

	var (
		body     []byte
		status   int
		fetchErr error
	)
	collector := c.baseCollector.Clone()
	collector.UserAgent = c.baseCollector.UserAgent
	collector.IgnoreRobotsTxt = true
	collector.AllowURLRevisit = true
	// Deliver non-2xx responses through OnResponse so status policy stays
	// with the caller.
	collector.ParseHTTPErrorResponse = true
	collector.SetRequestTimeout(c.requestTimeout(ctx))

	collector.OnResponse(func(r *colly.Response) {
		body = r.Body
		status = r.StatusCode
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			body = r.Body
			status = r.StatusCode
			return
		}
		fetchErr = err
	})

	var alreadyVisited *colly.AlreadyVisitedError
	if err := collector.Visit(url); err != nil && !errors.As(err, &alreadyVisited) {
		if fetchErr == nil {
			fetchErr = err
		}
	}
	collector.Wait()

	if fetchErr != nil {
		return nil, 0, fmt.Errorf("fetch %s: %w", url, fetchErr)
	}
	if status == 0 {
		return nil, 0, fmt.Errorf("fetch %s: no response", url)
	}
	return body, status, nil
}

func (c *Client) requestTimeout(ctx context.Context) time.Duration {
	timeout := c.cfg.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining > 0 && remaining < timeout {
			timeout = remaining
		}
	}
	return timeout
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          64,
		MaxIdleConnsPerHost:   8,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
}

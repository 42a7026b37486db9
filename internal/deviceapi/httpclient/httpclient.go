// Package httpclient implements deviceapi.Client against a PAN-OS-style
// device management REST API, following the BaseURL/HTTPClient/option
// client shape used by state-ingest's telemetry client in the example
// pack.
package httpclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/natej/panos-upgrade/internal/backoff"
	"github.com/natej/panos-upgrade/internal/deviceapi"
	"github.com/natej/panos-upgrade/internal/model"
	"github.com/natej/panos-upgrade/internal/upgradeerr"
)

// HTTPError wraps a non-2xx device API response.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("device API request failed: status=%d", e.StatusCode)
	}
	return fmt.Sprintf("device API request failed: status=%d error=%s", e.StatusCode, e.Message)
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient overrides the transport, e.g. for test servers or custom TLS policy.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.hc = hc }
}

// WithInsecureSkipVerify disables TLS certificate verification, for labs
// running self-signed device certificates.
func WithInsecureSkipVerify() Option {
	return func(c *Client) {
		c.hc.Transport = &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}}
	}
}

// Client is an HTTP-backed deviceapi.Client bound to one device's
// management address and API key.
type Client struct {
	baseURL string
	apiKey  string
	hc      *http.Client
}

// New constructs a Client for the device reachable at mgmtIP.
func New(mgmtIP, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight("https://"+mgmtIP, "/"),
		apiKey:  apiKey,
		hc:      &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("X-PAN-KEY", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return upgradeerr.New(upgradeerr.KindUnreachable, path, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return upgradeerr.New(upgradeerr.KindAuth, path, &HTTPError{StatusCode: resp.StatusCode, Message: string(raw)})
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return upgradeerr.New(upgradeerr.KindUnreachable, path, &HTTPError{StatusCode: resp.StatusCode, Message: string(raw)})
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode response from %s: %w", path, err)
		}
	}
	return nil
}

func (c *Client) SystemInfo(ctx context.Context) (deviceapi.SystemInfo, error) {
	var out deviceapi.SystemInfo
	err := c.do(ctx, http.MethodGet, "/api/system/info", nil, &out)
	return out, err
}

func (c *Client) HAState(ctx context.Context) (model.HAState, error) {
	var out struct {
		State model.HAState `json:"state"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/ha/state", nil, &out); err != nil {
		return "", err
	}
	return out.State, nil
}

func (c *Client) Metrics(ctx context.Context) (model.Metrics, error) {
	var out model.Metrics
	err := c.do(ctx, http.MethodGet, "/api/metrics", nil, &out)
	return out, err
}

func (c *Client) SoftwareCheck(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/software/check", nil, nil)
}

func (c *Client) SoftwareInfo(ctx context.Context) (deviceapi.SoftwareInfo, error) {
	var out deviceapi.SoftwareInfo
	err := c.do(ctx, http.MethodGet, "/api/software/info", nil, &out)
	return out, err
}

func (c *Client) DiskAvailable(ctx context.Context) (float64, error) {
	var out struct {
		FreeGB float64 `json:"free_gb"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/disk", nil, &out); err != nil {
		return 0, err
	}
	return out.FreeGB, nil
}

func (c *Client) Download(ctx context.Context, version string) (deviceapi.JobHandle, error) {
	var out struct {
		JobID string `json:"job_id"`
	}
	body := map[string]string{"version": version}
	if err := c.do(ctx, http.MethodPost, "/api/software/download", body, &out); err != nil {
		return "", err
	}
	return deviceapi.JobHandle(out.JobID), nil
}

func (c *Client) WaitDownload(ctx context.Context, job deviceapi.JobHandle) error {
	return c.waitJob(ctx, "/api/jobs/", job)
}

func (c *Client) Install(ctx context.Context, version string) (deviceapi.JobHandle, error) {
	var out struct {
		JobID string `json:"job_id"`
	}
	body := map[string]string{"version": version}
	if err := c.do(ctx, http.MethodPost, "/api/software/install", body, &out); err != nil {
		return "", err
	}
	return deviceapi.JobHandle(out.JobID), nil
}

func (c *Client) WaitInstall(ctx context.Context, job deviceapi.JobHandle) error {
	return c.waitJob(ctx, "/api/jobs/", job)
}

// jobStallWindow bounds how long a job may report no progress before
// WaitDownload/WaitInstall give up. The window is fixed; the configured
// job_stall_timeout is not passed down to this client and does not
// change it.
const jobStallWindow = 5 * time.Minute

var pollPolicy = backoff.Policy{Initial: 2 * time.Second, Max: 30 * time.Second, Factor: 1.5}

func (c *Client) waitJob(ctx context.Context, basePath string, job deviceapi.JobHandle) error {
	return backoff.Poll(ctx, pollPolicy, jobStallWindow, func(ctx context.Context) (bool, string, error) {
		var out struct {
			Status   string `json:"status"`
			Progress string `json:"progress"`
			Error    string `json:"error"`
		}
		if err := c.do(ctx, http.MethodGet, basePath+string(job), nil, &out); err != nil {
			return false, "", err
		}
		switch out.Status {
		case "success":
			return true, out.Progress, nil
		case "failed":
			return false, "", fmt.Errorf("device job %s failed: %s", job, out.Error)
		default:
			return false, out.Progress, nil
		}
	})
}

func (c *Client) Reboot(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/reboot", nil, nil)
}

var healthPolicy = backoff.Policy{Initial: 5 * time.Second, Max: 30 * time.Second, Factor: 1.5}

func (c *Client) WaitOnline(ctx context.Context, maxWait time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, maxWait)
	defer cancel()

	return backoff.Poll(ctx, healthPolicy, maxWait, func(ctx context.Context) (bool, string, error) {
		var out struct {
			Version string `json:"version"`
		}
		if err := c.do(ctx, http.MethodGet, "/api/system/info", nil, &out); err != nil {
			return false, "", nil // unreachable is expected mid-reboot; keep polling
		}
		return true, out.Version, nil
	})
}

// Dialer constructs one httpclient.Client per device, keyed by its
// management address, using a shared API key.
type Dialer struct {
	apiKey string
	opts   []Option
}

// NewDialer constructs a Dialer that authenticates with apiKey against
// every device it dials.
func NewDialer(apiKey string, opts ...Option) *Dialer {
	return &Dialer{apiKey: apiKey, opts: opts}
}

func (d *Dialer) Dial(device model.Device) deviceapi.Client {
	return New(device.MgmtIP, d.apiKey, d.opts...)
}

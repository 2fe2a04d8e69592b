package http

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// MetricsClient reads the operational endpoints of a running server
type MetricsClient struct {
	baseURL string
	client  *http.Client
}

// NewMetricsClient creates a client for the metrics server at endpoint
// (e.g. "localhost:9100" or "http://localhost:9100")
func NewMetricsClient(endpoint string, timeout time.Duration) *MetricsClient {
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}
	return &MetricsClient{
		baseURL: strings.TrimRight(endpoint, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Health returns nil if the server reports itself healthy
func (c *MetricsClient) Health() error {
	body, status, err := c.get("/health")
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return errors.Newf("unhealthy (%d): %s", status, strings.TrimSpace(string(body)))
	}
	return nil
}

// Metrics returns the metrics in Prometheus text format
func (c *MetricsClient) Metrics() ([]byte, error) {
	body, status, err := c.get("/metrics")
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, errors.Newf("http error: %d", status)
	}
	return body, nil
}

func (c *MetricsClient) get(path string) ([]byte, int, error) {
	resp, err := c.client.Get(c.baseURL + path)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "GET %s", path)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to read response body")
	}
	return body, resp.StatusCode, nil
}

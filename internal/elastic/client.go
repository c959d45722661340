// Package elastic ships login attempt records to Elasticsearch. The
// store holds the audit trail only; the authentication decision never
// waits on it beyond a bounded best-effort write.
package elastic

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/HORIAALEX/LoginAttemptMonitoringAPI/internal/config"
	"github.com/HORIAALEX/LoginAttemptMonitoringAPI/internal/models"
	"github.com/elastic/go-elasticsearch/v8"
)

type Client struct {
	es     *elasticsearch.Client
	index  string
	logger *slog.Logger
}

func NewClient(cfg *config.ElasticConfig, logger *slog.Logger) (*Client, error) {
	esCfg := elasticsearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
	}

	if cfg.SkipVerify {
		esCfg.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	es, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}

	return &Client{
		es:     es,
		index:  cfg.Index,
		logger: logger,
	}, nil
}

// Record indexes a login attempt document. Write-through, no retries; the
// caller decides how much it cares about the result.
func (c *Client) Record(ctx context.Context, attempt *models.LoginAttempt) error {
	body, err := json.Marshal(attempt)
	if err != nil {
		return fmt.Errorf("failed to encode login attempt: %w", err)
	}

	res, err := c.es.Index(c.index, bytes.NewReader(body), c.es.Index.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to index login attempt: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch rejected login attempt: %s", res.Status())
	}

	return nil
}

// Ping probes cluster connectivity. No retries here; those belong to the
// transport if anywhere.
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch ping failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping returned %s", res.Status())
	}

	return nil
}

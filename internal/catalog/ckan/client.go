// Package ckan implements the catalog backend client over the CKAN action API.
package ckan

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/oceansat/geoharvest/internal/harvest"
)

const defaultTimeout = 30 * time.Second

// Config captures the parameters required to talk to a CKAN instance.
type Config struct {
	BaseURL string
	APIKey  string
	Owner   string
	Timeout time.Duration
}

// Client calls the CKAN action API. It implements harvest.CatalogStore.
type Client struct {
	baseURL string
	apiKey  string
	owner   string
	http    *http.Client
	logger  *zap.Logger
}

// New constructs a Client.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("catalog base url is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		owner:   cfg.Owner,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}, nil
}

type actionResponse struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
	Error   json.RawMessage `json:"error"`
}

type packageRecord struct {
	ID        string           `json:"id,omitempty"`
	Name      string           `json:"name"`
	Title     string           `json:"title"`
	Notes     string           `json:"notes"`
	OwnerOrg  string           `json:"owner_org,omitempty"`
	Tags      []tagRecord      `json:"tags"`
	Extras    []extraRecord    `json:"extras"`
	Resources []resourceRecord `json:"resources"`
}

type tagRecord struct {
	Name string `json:"name"`
}

type extraRecord struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type resourceRecord struct {
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	URL          string `json:"url"`
	Format       string `json:"format,omitempty"`
	Mimetype     string `json:"mimetype,omitempty"`
	ResourceType string `json:"resource_type,omitempty"`
	Order        int    `json:"position,omitempty"`
}

type searchResult struct {
	Count   int             `json:"count"`
	Results []packageRecord `json:"results"`
}

// DatasetByGUID finds the dataset currently owning a guid.
func (c *Client) DatasetByGUID(ctx context.Context, guid string) (harvest.Dataset, error) {
	params := url.Values{}
	params.Set("fq", fmt.Sprintf(`guid:%q`, guid))
	params.Set("rows", "1")

	var result searchResult
	if err := c.get(ctx, "package_search", params, &result); err != nil {
		return harvest.Dataset{}, err
	}
	if result.Count == 0 || len(result.Results) == 0 {
		return harvest.Dataset{}, harvest.ErrNotFound
	}
	return toDataset(result.Results[0]), nil
}

// CreateOrUpdate submits the item to the catalog. An empty existingID means
// create; otherwise the existing package is rewritten in place.
func (c *Client) CreateOrUpdate(
	ctx context.Context,
	item harvest.CanonicalItem,
	resources []harvest.Resource,
	existingID string,
) (string, error) {
	record := toRecord(item, resources, c.owner)
	action := "package_create"
	if existingID != "" {
		action = "package_update"
		record.ID = existingID
	}

	var created packageRecord
	if err := c.post(ctx, action, record, &created); err != nil {
		return "", err
	}
	return created.ID, nil
}

// ResourcesOf lists a dataset's resources.
func (c *Client) ResourcesOf(ctx context.Context, datasetID string) ([]harvest.Resource, error) {
	params := url.Values{}
	params.Set("id", datasetID)

	var record packageRecord
	if err := c.get(ctx, "package_show", params, &record); err != nil {
		return nil, err
	}
	out := make([]harvest.Resource, 0, len(record.Resources))
	for _, r := range record.Resources {
		out = append(out, harvest.Resource{
			Name:         r.Name,
			Description:  r.Description,
			URL:          r.URL,
			Format:       r.Format,
			MimeType:     r.Mimetype,
			ResourceType: r.ResourceType,
			Order:        r.Order,
		})
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, action string, params url.Values, out any) error {
	endpoint := fmt.Sprintf("%s/api/3/action/%s?%s", c.baseURL, action, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build %s request: %w", action, err)
	}
	return c.do(req, action, out)
}

func (c *Client) post(ctx context.Context, action string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", action, err)
	}
	endpoint := fmt.Sprintf("%s/api/3/action/%s", c.baseURL, action)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", action, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, action, out)
}

func (c *Client) do(req *http.Request, action string, out any) error {
	if c.apiKey != "" {
		req.Header.Set("Authorization", c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", action, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read %s response: %w", action, err)
	}

	c.logger.Debug("catalog action called",
		zap.String("action", action),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode == http.StatusNotFound {
		return harvest.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned status %d: %s", action, resp.StatusCode, snippet(data))
	}

	var envelope actionResponse
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("decode %s response: %w", action, err)
	}
	if !envelope.Success {
		return fmt.Errorf("%s failed: %s", action, snippet(envelope.Error))
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("decode %s result: %w", action, err)
		}
	}
	return nil
}

func toRecord(item harvest.CanonicalItem, resources []harvest.Resource, owner string) packageRecord {
	record := packageRecord{
		Name:     item.Name,
		Title:    item.Title,
		Notes:    item.Notes,
		OwnerOrg: owner,
	}
	for _, t := range item.Tags {
		record.Tags = append(record.Tags, tagRecord{Name: t.Name})
	}

	extras := map[string]string{
		"identifier": item.Identifier,
		"guid":       item.GUID,
	}
	if item.StartTime != "" {
		extras["StartTime"] = item.StartTime
	}
	if item.StopTime != "" {
		extras["StopTime"] = item.StopTime
	}
	if item.Spatial != "" {
		extras["spatial"] = item.Spatial
	}
	for k, v := range item.Extras {
		extras[k] = v
	}
	for k, v := range extras {
		record.Extras = append(record.Extras, extraRecord{Key: k, Value: v})
	}

	for _, r := range resources {
		record.Resources = append(record.Resources, resourceRecord{
			Name:         r.Name,
			Description:  r.Description,
			URL:          r.URL,
			Format:       r.Format,
			Mimetype:     r.MimeType,
			ResourceType: r.ResourceType,
			Order:        r.Order,
		})
	}
	return record
}

func toDataset(record packageRecord) harvest.Dataset {
	extras := make(map[string]string, len(record.Extras))
	for _, e := range record.Extras {
		extras[e.Key] = e.Value
	}
	return harvest.Dataset{ID: record.ID, Name: record.Name, Extras: extras}
}

func snippet(data []byte) string {
	const max = 256
	s := strings.TrimSpace(string(data))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}

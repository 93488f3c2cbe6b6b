package sbissync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type sbisClient struct {
	baseURL     string
	accessToken string
	http        *http.Client
	limiter     <-chan time.Time
}

func newSbisClient(accessToken string) (*sbisClient, error) {
	baseURL := strings.TrimSpace(os.Getenv("SBIS_API_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://api.sbis.ru"
	}
	if strings.TrimSpace(accessToken) == "" {
		return nil, errors.New("sbis access token is empty")
	}
	rateLimitPerMin := int64(60)
	if v := strings.TrimSpace(os.Getenv("SBIS_RATE_LIMIT_PER_MIN")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			rateLimitPerMin = n
		}
	}
	interval := time.Minute / time.Duration(rateLimitPerMin)

	return &sbisClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		accessToken: accessToken,
		http:        &http.Client{Timeout: 30 * time.Second},
		limiter:     time.Tick(interval),
	}, nil
}

type sbisServicesResponse struct {
	Services []SbisService `json:"services"`
}

type sbisInvoicesResponse struct {
	Invoices []SbisInvoice `json:"invoices"`
}

func (c *sbisClient) Services(ctx context.Context, contractId string) ([]SbisService, error) {
	body, err := c.get(ctx, "/contract/"+url.PathEscape(contractId)+"/services", nil)
	if err != nil {
		return nil, err
	}
	var parsed sbisServicesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, err
	}
	return parsed.Services, nil
}

func (c *sbisClient) Invoices(ctx context.Context, contractId string) ([]SbisInvoice, error) {
	params := url.Values{}
	params.Set("status", "all")
	params.Set("limit", "100")
	body, err := c.get(ctx, "/contract/"+url.PathEscape(contractId)+"/invoices", params)
	if err != nil {
		return nil, err
	}
	var parsed sbisInvoicesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, err
	}
	return parsed.Invoices, nil
}

func (c *sbisClient) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	select {
	case <-c.limiter:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint = endpoint + "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("sbis api error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

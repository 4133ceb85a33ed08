package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/aluiziolira/go-scrape-products/config"
	"github.com/aluiziolira/go-scrape-products/parser"
	"github.com/gocolly/colly/v2"
)

// OutcomeKind tags the result of a single extraction attempt.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeRateLimited
	OutcomeHardFailure
	OutcomeTransportError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeHardFailure:
		return "hard_failure"
	case OutcomeTransportError:
		return "transport_error"
	default:
		return "unknown"
	}
}

// Outcome is what one extraction attempt produced.
type Outcome struct {
	Kind       OutcomeKind
	Results    parser.SelectorResults
	StatusCode int
	Err        error
}

// Fetcher issues one extraction request for a product URL. Implementations
// must not retry.
type Fetcher interface {
	Fetch(ctx context.Context, url string) Outcome
}

const responseKey = "response"

// Client calls the remote extraction API through a colly collector.
type Client struct {
	collector *colly.Collector
	endpoint  string
	apiKey    string
	country   string
	premium   bool
	metrics   *Metrics
}

// NewClient builds a client configured from cfg.
func NewClient(cfg *config.Config, metrics *Metrics) (*Client, error) {
	parsed, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("endpoint must include a host")
	}

	collector := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
	)
	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = true
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: config.MaxConcurrency,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})
	collector.OnResponse(func(r *colly.Response) {
		r.Ctx.Put(responseKey, r)
	})

	return &Client{
		collector: collector,
		endpoint:  cfg.Endpoint,
		apiKey:    cfg.APIKey,
		country:   cfg.Country,
		premium:   cfg.PremiumProxies,
		metrics:   metrics,
	}, nil
}

type apiElement struct {
	Type     string `json:"type"`
	Selector string `json:"selector"`
}

type apiRequest struct {
	APIKey         string       `json:"api_key"`
	URL            string       `json:"url"`
	PremiumProxies bool         `json:"premium_proxies"`
	Country        string       `json:"country"`
	Elements       []apiElement `json:"elements"`
	JSONResponse   bool         `json:"json_response"`
}

type apiMatch struct {
	Text       string         `json:"text"`
	HTML       string         `json:"html"`
	Attributes map[string]any `json:"attributes"`
}

type apiSelectorResult struct {
	Type     string          `json:"type"`
	Selector string          `json:"selector"`
	Results  []apiMatch      `json:"results"`
	Error    json.RawMessage `json:"error"`
}

type apiResponse struct {
	Status int                 `json:"status"`
	Data   []apiSelectorResult `json:"data"`
}

func (c *Client) newRequest(target string) apiRequest {
	elements := make([]apiElement, 0, len(parser.Selectors))
	for _, sel := range parser.Selectors {
		elements = append(elements, apiElement{Type: "xpath", Selector: string(sel)})
	}
	return apiRequest{
		APIKey:         c.apiKey,
		URL:            target,
		PremiumProxies: c.premium,
		Country:        c.country,
		Elements:       elements,
		JSONResponse:   true,
	}
}

// Fetch performs a single extraction request for target.
func (c *Client) Fetch(ctx context.Context, target string) Outcome {
	if err := ctx.Err(); err != nil {
		return Outcome{Kind: OutcomeTransportError, Err: err}
	}

	body, err := json.Marshal(c.newRequest(target))
	if err != nil {
		return c.record(Outcome{Kind: OutcomeTransportError, Err: fmt.Errorf("encode request: %w", err)})
	}

	hdr := http.Header{}
	hdr.Set("Content-Type", "application/json")
	cctx := colly.NewContext()

	start := time.Now()
	err = c.collector.Request(http.MethodPost, c.endpoint, bytes.NewReader(body), cctx, hdr)
	c.metrics.ObserveDuration(time.Since(start))
	if err != nil {
		return c.record(Outcome{Kind: OutcomeTransportError, Err: err})
	}

	resp, ok := cctx.GetAny(responseKey).(*colly.Response)
	if !ok {
		return c.record(Outcome{Kind: OutcomeTransportError, Err: errors.New("no response received")})
	}

	switch resp.StatusCode {
	case http.StatusOK:
		results, err := decodeResults(resp.Body)
		if err != nil {
			return c.record(Outcome{Kind: OutcomeTransportError, StatusCode: resp.StatusCode, Err: err})
		}
		return c.record(Outcome{Kind: OutcomeSuccess, StatusCode: resp.StatusCode, Results: results})
	case http.StatusTooManyRequests:
		return c.record(Outcome{Kind: OutcomeRateLimited, StatusCode: resp.StatusCode})
	default:
		slog.Error("extraction api returned non-200 status",
			slog.Int("status", resp.StatusCode),
			slog.String("url", target),
		)
		return c.record(Outcome{Kind: OutcomeHardFailure, StatusCode: resp.StatusCode})
	}
}

func (c *Client) record(o Outcome) Outcome {
	c.metrics.IncRequest(o.Kind.String())
	return o
}

func decodeResults(body []byte) (parser.SelectorResults, error) {
	var payload apiResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	results := make(parser.SelectorResults, len(payload.Data))
	for _, element := range payload.Data {
		sel := parser.Selector(element.Selector)
		if msg := selectorError(element.Error); msg != "" {
			results[sel] = parser.Match{Err: msg}
			continue
		}
		if len(element.Results) == 0 {
			continue
		}
		first := element.Results[0]
		results[sel] = parser.Match{
			Text:       first.Text,
			HTML:       first.HTML,
			Attributes: stringAttributes(first.Attributes),
		}
	}
	return results, nil
}

// selectorError turns the API's per-selector error field into a message.
// Absent, null, false and empty values mean no error.
func selectorError(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return ""
	}
	switch string(trimmed) {
	case "null", "false", `""`, "{}":
		return ""
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		return s
	}
	return string(trimmed)
}

func stringAttributes(in map[string]any) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

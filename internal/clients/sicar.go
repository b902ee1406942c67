package clients

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lapig-ufg/pasto-legal/internal/apperror"
	"github.com/lapig-ufg/pasto-legal/internal/models"
)

const (
	DefaultSICARBaseURL = "https://consultapublica.car.gov.br/publico/imoveis"
	sicarService        = "SICAR"
	browserUserAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// MaxRegistryResponseBytes bounds a registry payload. Points covered by
// hundreds of overlapping properties stay well below it.
const MaxRegistryResponseBytes = 8 << 20

// SICARClient queries the public CAR registry. The registry rejects requests
// without the session cookies handed out by its index page, so every lookup
// warms up a fresh cookie jar first.
type SICARClient struct {
	baseURL   string
	timeout   time.Duration
	transport http.RoundTripper
	logr      *zap.Logger
}

type SICARConfig struct {
	BaseURL string
	Timeout time.Duration
	// InsecureTLS skips certificate verification; the public registry has
	// served an incomplete chain for years.
	InsecureTLS bool
}

func NewSICARClient(cfg SICARConfig, logr *zap.Logger) *SICARClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultSICARBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}
	return &SICARClient{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		timeout:   cfg.Timeout,
		transport: transport,
		logr:      logr,
	}
}

// FindByCoordinate returns every property registered at the point, in
// registry order.
func (c *SICARClient) FindByCoordinate(ctx context.Context, coord models.Coordinate) ([]models.PropertyFeature, error) {
	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(coord.Latitude, 'f', -1, 64))
	params.Set("lng", strconv.FormatFloat(coord.Longitude, 'f', -1, 64))
	return c.query(ctx, "getImovel", params)
}

// FindByCode returns the property registered under a normalized CAR code.
func (c *SICARClient) FindByCode(ctx context.Context, code string) ([]models.PropertyFeature, error) {
	params := url.Values{}
	params.Set("codigo", code)
	return c.query(ctx, "getImovelByCodigo", params)
}

func (c *SICARClient) query(ctx context.Context, endpoint string, params url.Values) ([]models.PropertyFeature, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, apperror.New(apperror.Internal, "failed to create cookie jar", err)
	}
	httpClient := &http.Client{Timeout: c.timeout, Transport: c.transport, Jar: jar}

	if err := c.warmUp(ctx, httpClient); err != nil {
		return nil, err
	}

	fullURL := c.baseURL + "/" + endpoint + "?" + params.Encode()
	body, err := c.get(ctx, httpClient, fullURL)
	if err != nil {
		return nil, err
	}

	features, err := decodeFeatures(body)
	if err != nil {
		c.logr.Error("malformed registry response",
			zap.String("endpoint", endpoint),
			zap.String("kind", string(apperror.UpstreamMalformedResponse)),
			zap.String("body", excerpt(body)),
			zap.Error(err))
		return nil, apperror.New(apperror.UpstreamMalformedResponse, "registry returned an invalid response", err)
	}

	c.logr.Debug("registry lookup",
		zap.String("endpoint", endpoint),
		zap.String("params", params.Encode()),
		zap.Int("features", len(features)))
	return features, nil
}

// warmUp loads the index page for its session cookies. Only transport
// failures abort the lookup; a rejected index page is logged and the query
// itself decides the outcome.
func (c *SICARClient) warmUp(ctx context.Context, httpClient *http.Client) error {
	status, body, err := c.fetch(ctx, httpClient, c.baseURL+"/index")
	if err != nil {
		return err
	}
	if status < 200 || status > 299 {
		c.logr.Warn("registry index rejected, querying anyway",
			zap.Int("status", status),
			zap.String("body", excerpt(body)))
	}
	return nil
}

func (c *SICARClient) get(ctx context.Context, httpClient *http.Client, rawURL string) ([]byte, error) {
	status, body, err := c.fetch(ctx, httpClient, rawURL)
	if err != nil {
		return nil, err
	}

	if status < 200 || status > 299 {
		msg := fmt.Sprintf("registry returned HTTP %d", status)
		if status == http.StatusForbidden {
			msg = "access denied by the registry"
		}
		c.logr.Warn("registry request rejected",
			zap.String("url", rawURL),
			zap.Int("status", status),
			zap.String("kind", string(apperror.UpstreamUnavailable)),
			zap.String("body", excerpt(body)))
		return nil, apperror.New(apperror.UpstreamUnavailable, msg, nil)
	}
	if len(body) > MaxRegistryResponseBytes {
		c.logr.Error("registry response too large",
			zap.String("url", rawURL),
			zap.String("kind", string(apperror.UpstreamMalformedResponse)),
			zap.Int("limit", MaxRegistryResponseBytes))
		return nil, apperror.New(apperror.UpstreamMalformedResponse,
			fmt.Sprintf("registry response exceeds %d bytes", MaxRegistryResponseBytes), nil)
	}
	return body, nil
}

// fetch performs one GET and reads at most one byte past the response limit.
func (c *SICARClient) fetch(ctx context.Context, httpClient *http.Client, rawURL string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, nil, apperror.New(apperror.Internal, "failed to build registry request", err)
	}
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Referer", c.baseURL+"/index")

	resp, err := httpClient.Do(req)
	if err != nil {
		err = apperror.Classify(sicarService, err)
		c.logr.Warn("registry request failed",
			zap.String("url", rawURL),
			zap.String("kind", string(apperror.KindOf(err))),
			zap.Error(err))
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxRegistryResponseBytes+1))
	if err != nil {
		return 0, nil, apperror.Classify(sicarService, fmt.Errorf("failed to read registry response: %w", err))
	}
	return resp.StatusCode, body, nil
}

type sicarCollection struct {
	Features *[]sicarFeature `json:"features"`
}

type sicarFeature struct {
	Properties struct {
		Codigo    string      `json:"codigo"`
		Area      json.Number `json:"area"`
		Municipio string      `json:"municipio"`
	} `json:"properties"`
	Geometry *models.Geometry `json:"geometry"`
}

func decodeFeatures(body []byte) ([]models.PropertyFeature, error) {
	var fc sicarCollection
	if err := json.Unmarshal(body, &fc); err != nil {
		return nil, fmt.Errorf("not a feature collection: %w", err)
	}
	if fc.Features == nil {
		return nil, fmt.Errorf("response has no features member")
	}

	out := make([]models.PropertyFeature, 0, len(*fc.Features))
	for i, f := range *fc.Features {
		if f.Geometry == nil {
			return nil, fmt.Errorf("feature %d has no geometry", i)
		}
		area, err := f.Properties.Area.Float64()
		if err != nil {
			return nil, fmt.Errorf("feature %d has invalid area %q: %w", i, f.Properties.Area, err)
		}
		p := models.PropertyFeature{
			Code:         strings.TrimSpace(f.Properties.Codigo),
			AreaHectares: area,
			Municipality: strings.TrimSpace(f.Properties.Municipio),
			Geometry:     *f.Geometry,
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}
		out = append(out, p)
	}
	return out, nil
}

func excerpt(body []byte) string {
	const limit = 512
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}

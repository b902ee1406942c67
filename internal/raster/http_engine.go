package raster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lapig-ufg/pasto-legal/internal/apperror"
	"github.com/lapig-ufg/pasto-legal/internal/models"
)

const serviceName = "raster provider"

// MaxZonalResponseBytes bounds a zonal payload, which holds at most one
// sum per class.
const MaxZonalResponseBytes = 512 << 10

// HTTPEngine forwards zonal queries to the remote raster provider, which runs
// them against the latest band of each asset.
type HTTPEngine struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logr       *zap.Logger
}

func NewHTTPEngine(baseURL, apiKey string, timeout time.Duration, logr *zap.Logger) *HTTPEngine {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPEngine{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		logr:       logr,
	}
}

type zonalRequest struct {
	Dataset    string          `json:"dataset"`
	Asset      string          `json:"asset"`
	Band       string          `json:"band"`
	Reducer    Reducer         `json:"reducer"`
	Scale      float64         `json:"scale"`
	MaxPixels  float64         `json:"max_pixels"`
	Geometry   models.Geometry `json:"geometry"`
	Classifier *Classifier     `json:"classifier,omitempty"`
}

type zonalGroup struct {
	Class *float64 `json:"class"`
	Sum   *float64 `json:"sum"`
}

type zonalResponse struct {
	Sum    *float64     `json:"sum"`
	Groups []zonalGroup `json:"groups"`
}

func (e *HTTPEngine) ZonalStats(ctx context.Context, q Query) (Result, error) {
	if err := q.Validate(); err != nil {
		return Result{}, apperror.New(apperror.InvalidInput, "invalid zonal query", err)
	}

	body, err := json.Marshal(zonalRequest{
		Dataset:    q.Dataset,
		Asset:      q.Asset,
		Band:       "last",
		Reducer:    q.Reducer,
		Scale:      q.Scale,
		MaxPixels:  1e13,
		Geometry:   q.Geometry,
		Classifier: q.Classifier,
	})
	if err != nil {
		return Result{}, fmt.Errorf("encode zonal query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/zonal-stats", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build zonal request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	start := time.Now()
	resp, err := e.httpClient.Do(req)
	if err != nil {
		cerr := apperror.Classify(serviceName, err)
		e.logr.Warn("raster provider call failed",
			zap.String("dataset", q.Dataset),
			zap.String("kind", string(apperror.KindOf(cerr))),
			zap.Error(err))
		return Result{}, cerr
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, MaxZonalResponseBytes+1))
	if err != nil {
		return Result{}, apperror.Classify(serviceName, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		e.logr.Warn("raster provider returned error status",
			zap.String("dataset", q.Dataset),
			zap.Int("status", resp.StatusCode),
			zap.String("body", excerpt(payload)))
		return Result{}, apperror.New(apperror.UpstreamUnavailable,
			fmt.Sprintf("raster provider returned HTTP %d", resp.StatusCode), nil)
	}

	if len(payload) > MaxZonalResponseBytes {
		e.logr.Error("raster provider payload too large",
			zap.String("dataset", q.Dataset),
			zap.String("kind", string(apperror.UpstreamMalformedResponse)),
			zap.Int("limit", MaxZonalResponseBytes))
		return Result{}, apperror.New(apperror.UpstreamMalformedResponse,
			fmt.Sprintf("raster provider response exceeds %d bytes", MaxZonalResponseBytes), nil)
	}

	res, err := decodeZonal(q.Reducer, payload)
	if err != nil {
		e.logr.Error("raster provider returned malformed payload",
			zap.String("dataset", q.Dataset),
			zap.String("kind", string(apperror.UpstreamMalformedResponse)),
			zap.String("body", excerpt(payload)),
			zap.Error(err))
		return Result{}, apperror.New(apperror.UpstreamMalformedResponse, "raster provider returned an unreadable response", err)
	}

	e.logr.Debug("zonal stats done",
		zap.String("dataset", q.Dataset),
		zap.Int("groups", len(res.Groups)),
		zap.Duration("took", time.Since(start)))
	return res, nil
}

func decodeZonal(reducer Reducer, payload []byte) (Result, error) {
	var zr zonalResponse
	if err := json.Unmarshal(payload, &zr); err != nil {
		return Result{}, err
	}

	switch reducer {
	case ReducerWeightedSum:
		if zr.Sum == nil {
			return Result{}, fmt.Errorf("missing sum")
		}
		if !validAmount(*zr.Sum) {
			return Result{}, fmt.Errorf("invalid sum %v", *zr.Sum)
		}
		return Result{Total: *zr.Sum}, nil
	default:
		groups := make(map[int]float64, len(zr.Groups))
		for i, g := range zr.Groups {
			if g.Class == nil || g.Sum == nil {
				return Result{}, fmt.Errorf("group %d is missing class or sum", i)
			}
			c := *g.Class
			if math.IsNaN(c) || math.IsInf(c, 0) || c != math.Trunc(c) {
				return Result{}, fmt.Errorf("group %d has non integer class %v", i, c)
			}
			if !validAmount(*g.Sum) {
				return Result{}, fmt.Errorf("group %d has invalid sum %v", i, *g.Sum)
			}
			groups[int(c)] += *g.Sum
		}
		return Result{Groups: groups}, nil
	}
}

func validAmount(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}

func excerpt(b []byte) string {
	const limit = 512
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}

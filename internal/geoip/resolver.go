// Package geoip resolves visitor addresses to countries through an external
// HTTP lookup service. Resolution failures are expected and must never
// surface to the visitor, so every error path collapses to
// analytics.ErrCountryUnknown.
package geoip

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/linkkey/linkkey/internal/processing/analytics"
	"github.com/linkkey/linkkey/pkg/httpclient"
)

type HTTPResolver struct {
	client   *httpclient.Client
	endpoint string
}

type Config struct {
	Endpoint    string
	Timeout     time.Duration
	MaxFailures int
	CBInterval  time.Duration
}

func NewHTTPResolver(cfg Config) (*HTTPResolver, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("geoip endpoint must not be empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 1500 * time.Millisecond
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.CBInterval <= 0 {
		cfg.CBInterval = 30 * time.Second
	}

	return &HTTPResolver{
		client:   httpclient.NewClient(cfg.Timeout, cfg.MaxFailures, cfg.CBInterval),
		endpoint: strings.TrimRight(endpoint, "/"),
	}, nil
}

type lookupResponse struct {
	CountryName string `json:"country_name"`
	CountryCode string `json:"country_code"`
}

func (r *HTTPResolver) Country(ctx context.Context, ip string) (analytics.Country, error) {
	addr := net.ParseIP(strings.TrimSpace(ip))
	if addr == nil || !addr.IsGlobalUnicast() || addr.IsPrivate() {
		return analytics.Country{}, analytics.ErrCountryUnknown
	}

	resp, err := r.client.Get(ctx, r.endpoint+"/"+addr.String(), nil, nil)
	if err != nil {
		return analytics.Country{}, analytics.ErrCountryUnknown
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return analytics.Country{}, analytics.ErrCountryUnknown
	}

	var payload lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return analytics.Country{}, analytics.ErrCountryUnknown
	}

	code := strings.ToUpper(strings.TrimSpace(payload.CountryCode))
	if code == "" {
		return analytics.Country{}, analytics.ErrCountryUnknown
	}

	return analytics.Country{
		Name: strings.TrimSpace(payload.CountryName),
		Code: code,
	}, nil
}

// Noop is a GeoResolver that never resolves. Used when geo lookups are
// disabled.
type Noop struct{}

func (Noop) Country(context.Context, string) (analytics.Country, error) {
	return analytics.Country{}, analytics.ErrCountryUnknown
}

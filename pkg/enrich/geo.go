// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/telekom/tracelens/internal/logger"
)

// geoEndpoint is the free ip-api.com endpoint. The fields parameter
// trims the answer down to what ends up in a Record.
const geoEndpoint = "http://ip-api.com/json/%s?fields=status,country,countryCode,city,lat,lon"

// geoRequestsPerMinute is the free tier budget per source address.
const geoRequestsPerMinute = 45

type geoInfo struct {
	Status      string  `json:"status"`
	Country     string  `json:"country"`
	CountryCode string  `json:"countryCode"`
	City        string  `json:"city"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
}

// geoClient looks up coarse location data on ip-api.com, pacing
// requests to stay below the free tier budget.
type geoClient struct {
	client  *http.Client
	limiter *rate.Limiter
}

func newGeoClient(timeout time.Duration) *geoClient {
	return &geoClient{
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(geoRequestsPerMinute)/60, geoRequestsPerMinute),
	}
}

func (g *geoClient) lookup(ctx context.Context, ip net.IP) (geoInfo, error) {
	log := logger.FromContext(ctx)
	if err := g.limiter.Wait(ctx); err != nil {
		return geoInfo{}, err
	}

	url := fmt.Sprintf(geoEndpoint, ip)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return geoInfo{}, fmt.Errorf("failed to create request: %w", err)
	}

	res, err := g.client.Do(req) //nolint:bodyclose // closed in defer
	if err != nil {
		return geoInfo{}, fmt.Errorf("failed to query %s: %w", url, err)
	}
	defer func() {
		if cerr := res.Body.Close(); cerr != nil {
			log.Error("Failed to close response body", "error", cerr)
		}
	}()

	if res.StatusCode != http.StatusOK {
		return geoInfo{}, fmt.Errorf("geo lookup for %s returned status %d", ip, res.StatusCode)
	}

	var info geoInfo
	if err := json.NewDecoder(res.Body).Decode(&info); err != nil {
		return geoInfo{}, fmt.Errorf("failed to decode geo response: %w", err)
	}
	if info.Status != "success" {
		return geoInfo{}, fmt.Errorf("geo lookup for %s was refused", ip)
	}
	return info, nil
}

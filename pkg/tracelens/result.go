// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package tracelens

import (
	"encoding/json"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/telekom/tracelens/internal/traceroute"
	"github.com/telekom/tracelens/pkg/diag"
	"github.com/telekom/tracelens/pkg/enrich"
)

// Version is the build version, set from the main package.
var Version = "dev"

// Meta describes the run that produced a result.
type Meta struct {
	// Version is the tracelens build version.
	Version string `json:"version"`
	// Generator identifies the producing tool.
	Generator string `json:"generator"`
	// RunID is a unique identifier of this run.
	RunID string `json:"runId"`
	// GeneratedAt is when the result was assembled.
	GeneratedAt time.Time `json:"generatedAt"`
	// DataSources lists the external providers consulted.
	DataSources []string `json:"dataSources,omitempty"`
}

// Geo is the location data of a hop.
type Geo struct {
	Country     string  `json:"country,omitempty"`
	CountryCode string  `json:"countryCode,omitempty"`
	City        string  `json:"city,omitempty"`
	Lat         float64 `json:"lat,omitempty"`
	Lon         float64 `json:"lon,omitempty"`
}

// HopDetail is one hop of the path with its enrichment and findings.
type HopDetail struct {
	// Hop is the 1-based hop index.
	Hop int `json:"hop"`
	// IP is the responding address, empty if every probe timed out.
	IP string `json:"ip,omitempty"`
	// Probes holds the individual probe results.
	Probes []traceroute.ProbeResult `json:"probes"`
	// RTTMin, RTTAvg and RTTMax aggregate the answered probes.
	RTTMin time.Duration `json:"-"`
	RTTAvg time.Duration `json:"-"`
	RTTMax time.Duration `json:"-"`
	// Sent and Received count the probes sent and answered.
	Sent     int `json:"sent"`
	Received int `json:"received"`
	// PTR is the reverse DNS name of the responding address.
	PTR string `json:"ptr,omitempty"`
	// ASN and Org identify the origin autonomous system.
	ASN string `json:"asn,omitempty"`
	Org string `json:"org,omitempty"`
	// Geo locates the responding address, when known.
	Geo *Geo `json:"geo,omitempty"`
	// Classification buckets the responding address by routability.
	Classification enrich.Classification `json:"classification,omitempty"`
	// Tags holds the findings of the analysis for this hop.
	Tags []diag.Tag `json:"tags,omitempty"`
}

func (h HopDetail) MarshalJSON() ([]byte, error) {
	type alias HopDetail
	a := &struct {
		RTTMinMs *float64 `json:"rttMinMs,omitempty"`
		RTTAvgMs *float64 `json:"rttAvgMs,omitempty"`
		RTTMaxMs *float64 `json:"rttMaxMs,omitempty"`
		alias
	}{alias: alias(h)}

	if h.Received > 0 {
		minMs, avgMs, maxMs := toMs(h.RTTMin), toMs(h.RTTAvg), toMs(h.RTTMax)
		a.RTTMinMs, a.RTTAvgMs, a.RTTMaxMs = &minMs, &avgMs, &maxMs
	}
	return json.Marshal(a)
}

// TraceResult is the complete outcome of one trace run.
type TraceResult struct {
	// Meta describes the producing run.
	Meta Meta `json:"meta"`
	// Target is the requested hostname or address.
	Target string `json:"target"`
	// ResolvedIP is the traced IPv4 address.
	ResolvedIP string `json:"resolvedIp"`
	// Protocol is the probe protocol of the run.
	Protocol traceroute.Protocol `json:"protocol"`
	// Port is the destination port, zero for ICMP.
	Port int `json:"port,omitempty"`
	// Timestamp is when probing started.
	Timestamp time.Time `json:"timestamp"`
	// Hops lists the path in TTL order.
	Hops []HopDetail `json:"hops"`
	// Diagnosis summarizes the path health.
	Diagnosis diag.Diagnosis `json:"diagnosis"`
}

// newResult folds the sweep, the enrichment records and the analysis
// into the exportable result.
func newResult(cfg *Config, target traceroute.Target, hops []traceroute.Hop, records map[string]enrich.Record, rep diag.Report, started time.Time) *TraceResult {
	res := &TraceResult{
		Meta: Meta{
			Version:     Version,
			Generator:   "tracelens",
			RunID:       uuid.NewString(),
			GeneratedAt: time.Now().UTC(),
			DataSources: dataSources(cfg),
		},
		Target:     cfg.Target,
		ResolvedIP: target.IP.String(),
		Protocol:   target.Protocol,
		Port:       target.Port,
		Timestamp:  started.UTC(),
		Hops:       make([]HopDetail, 0, len(hops)),
		Diagnosis:  rep.Diagnosis,
	}

	for _, hop := range hops {
		hd := HopDetail{
			Hop:      hop.Index,
			Probes:   hop.Probes,
			RTTMin:   hop.RTTMin,
			RTTAvg:   hop.RTTAvg,
			RTTMax:   hop.RTTMax,
			Sent:     hop.Sent,
			Received: hop.Received,
			Tags:     rep.Tags[hop.Index],
		}
		if hop.IP != nil {
			hd.IP = hop.IP.String()
			if rec, ok := records[hd.IP]; ok {
				hd.PTR = rec.PTR
				hd.ASN = rec.ASN
				hd.Org = rec.Org
				hd.Classification = rec.Classification
				if rec.Country != "" || rec.CountryCode != "" || rec.City != "" {
					hd.Geo = &Geo{
						Country:     rec.Country,
						CountryCode: rec.CountryCode,
						City:        rec.City,
						Lat:         rec.Lat,
						Lon:         rec.Lon,
					}
				}
			}
		}
		res.Hops = append(res.Hops, hd)
	}
	return res
}

func dataSources(cfg *Config) []string {
	var src []string
	if cfg.EnableDNS {
		src = append(src, "team_cymru")
	}
	if cfg.EnableGeo {
		src = append(src, "ip-api.com")
	}
	return src
}

// toMs converts a duration to milliseconds with two decimals.
func toMs(d time.Duration) float64 {
	return math.Round(float64(d)/float64(time.Millisecond)*100) / 100
}

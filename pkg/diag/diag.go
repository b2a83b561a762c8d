// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

// Package diag derives path health findings from a finished trace.
// The analysis is a pure function of the hops and their enrichment
// records, running it twice yields the same report.
package diag

import (
	"encoding/json"
	"fmt"
	"math"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/telekom/tracelens/internal/traceroute"
	"github.com/telekom/tracelens/pkg/enrich"
)

// Tag marks a single finding on a hop.
type Tag string

const (
	// TagPrivate marks a hop inside private address space.
	TagPrivate Tag = "private"
	// TagCGNAT marks a hop inside the carrier grade NAT range.
	TagCGNAT Tag = "cgnat"
	// TagICMPFiltered marks a silent hop with responding hops behind it.
	TagICMPFiltered Tag = "icmp_filtered"
	// TagLatencyJump marks a hop whose RTT average rises sharply over
	// the previous responding hop.
	TagLatencyJump Tag = "latency_jump"
	// TagInternationalEgress marks a latency jump that coincides with
	// a country change.
	TagInternationalEgress Tag = "international_egress"
	// TagHighJitter marks a hop with an unstable RTT.
	TagHighJitter Tag = "high_jitter"
	// TagSpike marks a hop far above the path average.
	TagSpike Tag = "spike"
	// TagDestination marks the hop that answered as the target.
	TagDestination Tag = "destination"
)

// LatencyJump records a sharp RTT increase between two responding hops.
type LatencyJump struct {
	// Hop is the index the jump was measured at.
	Hop int `json:"hop"`
	// Delta is the increase over the previous responding hop.
	Delta time.Duration `json:"-"`
}

func (j LatencyJump) MarshalJSON() ([]byte, error) {
	type alias LatencyJump
	return json.Marshal(&struct {
		DeltaMs float64 `json:"deltaMs"`
		alias
	}{
		DeltaMs: roundMs(j.Delta),
		alias:   alias(j),
	})
}

// Diagnosis is the path level summary of the analysis.
type Diagnosis struct {
	// Reachable indicates the destination answered.
	Reachable bool `json:"reachable"`
	// TotalHops is the number of swept hops.
	TotalHops int `json:"totalHops"`
	// AvgRTT is the mean of the hop RTT averages over responding hops.
	AvgRTT time.Duration `json:"-"`
	// FilteredHops lists the silent hops in the middle of the path.
	FilteredHops []int `json:"filteredHops"`
	// LatencyJumps lists the sharp RTT increases along the path.
	LatencyJumps []LatencyJump `json:"latencyJumps"`
	// EgressHop is the first public hop after the local network, zero
	// when the path never shows that transition.
	EgressHop int `json:"egressHop,omitempty"`
	// Issues lists the findings in human readable form.
	Issues []string `json:"issues,omitempty"`
	// Summary is a one line verdict for the whole path.
	Summary string `json:"summary"`
}

func (d Diagnosis) MarshalJSON() ([]byte, error) {
	type alias Diagnosis
	return json.Marshal(&struct {
		AvgRTTMs float64 `json:"avgRttMs"`
		alias
	}{
		AvgRTTMs: roundMs(d.AvgRTT),
		alias:    alias(d),
	})
}

// Report is the outcome of an analysis.
type Report struct {
	// Tags holds the findings per hop index.
	Tags map[int][]Tag
	// Diagnosis summarizes the path.
	Diagnosis Diagnosis
}

// Analyze inspects a finished trace. The records map is keyed by hop
// address and may be incomplete, missing records only mute the
// classification and country based findings.
func Analyze(hops []traceroute.Hop, records map[string]enrich.Record, target net.IP, cfg Config) Report {
	cfg = cfg.withDefaults()
	rep := Report{Tags: make(map[int][]Tag, len(hops))}

	lastResponding := 0
	responding := 0
	var sum time.Duration
	for _, hop := range hops {
		if hop.Received > 0 {
			lastResponding = hop.Index
			responding++
			sum += hop.RTTAvg
		}
	}
	var pathAvg time.Duration
	if responding > 0 {
		pathAvg = sum / time.Duration(responding)
	}

	d := Diagnosis{
		TotalHops:    len(hops),
		AvgRTT:       pathAvg,
		FilteredHops: []int{},
		LatencyJumps: []LatencyJump{},
	}

	// prevAvg is negative until the first responding hop was seen.
	prevAvg := time.Duration(-1)
	prevCountry := ""
	seenInside := false
	firstPublic := 0
	intl := map[int]bool{}

	for _, hop := range hops {
		var tags []Tag
		var rec enrich.Record
		if hop.IP != nil {
			rec = records[hop.IP.String()]
		}

		switch rec.Classification {
		case enrich.ClassPrivate:
			tags = append(tags, TagPrivate)
		case enrich.ClassCGNAT:
			tags = append(tags, TagCGNAT)
		}

		if hop.Received == 0 {
			if hop.Index < lastResponding {
				tags = append(tags, TagICMPFiltered)
				d.FilteredHops = append(d.FilteredHops, hop.Index)
			}
			if len(tags) > 0 {
				rep.Tags[hop.Index] = tags
			}
			continue
		}

		if prevAvg >= 0 {
			if delta := hop.RTTAvg - prevAvg; delta >= cfg.LatencyJump {
				tags = append(tags, TagLatencyJump)
				if prevCountry != "" && rec.CountryCode != "" && rec.CountryCode != prevCountry {
					tags = append(tags, TagInternationalEgress)
					intl[hop.Index] = true
				}
				d.LatencyJumps = append(d.LatencyJumps, LatencyJump{Hop: hop.Index, Delta: delta})
			}
		}

		if spread := hop.RTTMax - hop.RTTMin; hop.Received >= 2 &&
			spread >= cfg.JitterFloor &&
			float64(spread) >= cfg.JitterRatio*float64(hop.RTTAvg) {
			tags = append(tags, TagHighJitter)
		}

		if pathAvg > 0 && hop.RTTAvg >= cfg.SpikeFloor &&
			float64(hop.RTTAvg) >= cfg.SpikeMultiplier*float64(pathAvg) {
			tags = append(tags, TagSpike)
		}

		switch rec.Classification {
		case enrich.ClassPrivate, enrich.ClassCGNAT:
			seenInside = true
		case enrich.ClassPublic:
			if seenInside && firstPublic == 0 {
				firstPublic = hop.Index
			}
		}

		if hop.Reached {
			d.Reachable = true
			if hop.IP != nil && hop.IP.Equal(target) {
				tags = append(tags, TagDestination)
			}
		}

		if len(tags) > 0 {
			rep.Tags[hop.Index] = tags
		}

		prevAvg = hop.RTTAvg
		if rec.CountryCode != "" {
			prevCountry = rec.CountryCode
		}
	}

	// The international transition marks the egress when the country
	// data reveals one, otherwise the first public hop after the local
	// network does.
	d.EgressHop = firstPublic
	for _, j := range d.LatencyJumps {
		if intl[j.Hop] {
			d.EgressHop = j.Hop
			break
		}
	}

	if !d.Reachable {
		d.Issues = append(d.Issues, "Target unreachable")
	}
	if len(d.FilteredHops) > 0 {
		d.Issues = append(d.Issues, filteredIssue(d.FilteredHops))
	}
	for _, j := range d.LatencyJumps {
		msg := fmt.Sprintf("Latency jump +%.1fms at hop %d", float64(j.Delta)/float64(time.Millisecond), j.Hop)
		if intl[j.Hop] {
			msg += " (likely international transit)"
		}
		d.Issues = append(d.Issues, msg)
	}

	if d.Reachable {
		d.Summary = fmt.Sprintf("Destination reached in %d hops, %.1f ms average, %d issues detected",
			d.TotalHops, float64(d.AvgRTT)/float64(time.Millisecond), len(d.Issues))
	} else {
		d.Summary = fmt.Sprintf("Destination not reached within %d hops", d.TotalHops)
	}

	rep.Diagnosis = d
	return rep
}

func filteredIssue(hops []int) string {
	shown, more := hops, 0
	if len(shown) > 5 {
		more = len(shown) - 5
		shown = shown[:5]
	}
	parts := make([]string, len(shown))
	for i, h := range shown {
		parts[i] = strconv.Itoa(h)
	}

	msg := "ICMP filtering detected at hop(s): " + strings.Join(parts, ", ")
	if more > 0 {
		msg += fmt.Sprintf(" (+%d more)", more)
	}
	return msg
}

// roundMs converts a duration to milliseconds with two decimals.
func roundMs(d time.Duration) float64 {
	return math.Round(float64(d)/float64(time.Millisecond)*100) / 100
}

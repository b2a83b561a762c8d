// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/telekom/tracelens/pkg/diag"
	"github.com/telekom/tracelens/pkg/tracelens"
	"github.com/telekom/tracelens/pkg/tracelens/metrics"
)

// renderTable prints the result the way traceroute users expect it,
// one row per hop with the enrichment columns appended.
func renderTable(w io.Writer, res *tracelens.TraceResult) {
	header := fmt.Sprintf("Traced path to %s (%s) over %s", res.Target, res.ResolvedIP, res.Protocol)
	if res.Port != 0 {
		header += fmt.Sprintf(", port %d", res.Port)
	}
	fmt.Fprintln(w, header)
	fmt.Fprintln(w)

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"#", "IP", "Name", "Loss", "RTT min/avg/max", "AS", "Location", "Tags"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)
	for _, hop := range res.Hops {
		table.Append(hopRow(hop))
	}
	table.Render()

	fmt.Fprintln(w)
	fmt.Fprintln(w, res.Diagnosis.Summary)
	for _, issue := range res.Diagnosis.Issues {
		fmt.Fprintf(w, "  - %s\n", issue)
	}
}

func hopRow(hop tracelens.HopDetail) []string {
	row := []string{strconv.Itoa(hop.Hop), "*", "", "", "", "", "", joinTags(hop.Tags)}
	if hop.Received == 0 {
		return row
	}

	row[1] = hop.IP
	row[2] = hop.PTR
	if hop.Sent > 0 {
		row[3] = fmt.Sprintf("%.0f%%", float64(hop.Sent-hop.Received)/float64(hop.Sent)*100)
	}
	row[4] = fmt.Sprintf("%.1f/%.1f/%.1f ms", ms(hop.RTTMin), ms(hop.RTTAvg), ms(hop.RTTMax))
	row[5] = strings.TrimSpace(hop.ASN + " " + hop.Org)
	if hop.Geo != nil {
		row[6] = location(hop.Geo)
	}
	return row
}

func location(geo *tracelens.Geo) string {
	parts := make([]string, 0, 2)
	if geo.City != "" {
		parts = append(parts, geo.City)
	}
	if geo.CountryCode != "" {
		parts = append(parts, geo.CountryCode)
	}
	return strings.Join(parts, ", ")
}

func joinTags(tags []diag.Tag) string {
	strs := make([]string, len(tags))
	for i, tag := range tags {
		strs[i] = string(tag)
	}
	return strings.Join(strs, ",")
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func writeJSON(w io.Writer, res *tracelens.TraceResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	return nil
}

func writeResultFile(path string, res *tracelens.TraceResult) error {
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write result file: %w", err)
	}
	return nil
}

func writeMetricsFile(path string, registry *prometheus.Registry) error {
	var buf bytes.Buffer
	if err := metrics.DumpText(registry, &buf); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}
	return nil
}

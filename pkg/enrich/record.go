// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package enrich

import "time"

// Record is the enrichment data collected for a single address.
// Lookup failures leave the affected fields empty, a record is
// produced for every requested address regardless.
type Record struct {
	// IP is the dotted quad the record belongs to.
	IP string `json:"ip"`
	// PTR is the reverse DNS name, without the trailing dot.
	PTR string `json:"ptr,omitempty"`
	// ASN is the origin autonomous system in "AS15169" form.
	ASN string `json:"asn,omitempty"`
	// Org is the AS description registered for the origin.
	Org string `json:"org,omitempty"`
	// Country and CountryCode locate the address. The code falls back
	// to the routing registry when the geo provider has no answer.
	Country     string `json:"country,omitempty"`
	CountryCode string `json:"countryCode,omitempty"`
	// City is the geo provider's city, when known.
	City string `json:"city,omitempty"`
	// Lat and Lon are the geo provider's coordinates.
	Lat float64 `json:"lat,omitempty"`
	Lon float64 `json:"lon,omitempty"`
	// Classification buckets the address by routability.
	Classification Classification `json:"classification"`
	// FetchedAt is when the lookups ran, it drives cache expiry.
	FetchedAt time.Time `json:"fetchedAt"`
}

// Store persists records between runs. Implementations must be safe
// for concurrent use.
type Store interface {
	// Get returns the stored record for an address.
	Get(ip string) (Record, bool)
	// Put stores a record under the given address.
	Put(ip string, rec Record)
}

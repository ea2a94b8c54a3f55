// Package geodb resolves proxy endpoint addresses to Meridian regions
// using a MaxMind GeoIP2/GeoLite2 database. Resolution is best-effort: a
// missing database, unparseable address, or unknown location simply
// reports no match and the caller falls back to its default region.
package geodb

import (
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"

	"mercator-hq/meridian/pkg/geo"
)

// Resolver maps IP addresses to regions via a GeoIP database.
type Resolver struct {
	db *geoip2.Reader
}

// Open loads a GeoIP database from disk.
func Open(path string) (*Resolver, error) {
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open GeoIP database %q: %w", path, err)
	}
	return &Resolver{db: db}, nil
}

// Close releases the database.
func (r *Resolver) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// ResolveRegion maps a proxy address (host or host:port) to the nearest
// Meridian region. Returns false when the address cannot be located.
func (r *Resolver) ResolveRegion(address string) (geo.Region, bool) {
	if r == nil || r.db == nil {
		return "", false
	}

	host := address
	if h, _, err := net.SplitHostPort(address); err == nil {
		host = h
	}

	ip := net.ParseIP(host)
	if ip == nil {
		return "", false
	}

	rec, err := r.db.City(ip)
	if err != nil {
		return "", false
	}

	return regionForRecord(rec)
}

// regionForRecord maps a GeoIP city record to a region. Coarse placement
// only: continent plus country (and longitude for North America) is
// enough to pick the latency-sensible shard.
func regionForRecord(rec *geoip2.City) (geo.Region, bool) {
	switch rec.Continent.Code {
	case "NA":
		if rec.Location.Longitude < -100 {
			return geo.RegionUSWest, true
		}
		return geo.RegionUSEast, true
	case "EU":
		switch rec.Country.IsoCode {
		case "DE", "AT", "CH", "PL", "CZ":
			return geo.RegionEUCentral, true
		}
		return geo.RegionEUWest, true
	case "AS":
		switch rec.Country.IsoCode {
		case "JP", "KR":
			return geo.RegionAsiaNortheast, true
		}
		return geo.RegionAsiaSoutheast, true
	case "SA":
		return geo.RegionSouthAmerica, true
	case "OC":
		return geo.RegionAsiaSoutheast, true
	default:
		return "", false
	}
}

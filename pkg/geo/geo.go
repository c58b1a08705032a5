// Package geo resolves IP addresses to a coarse, best-effort location
package geo

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/oschwald/maxminddb-golang"
)

// ErrNotFound is returned when an address has no location
var ErrNotFound = errors.New("geo: location not found")

// Result is a resolved location. Empty strings and nil coordinates mean unknown.
type Result struct {
	City    string
	Region  string
	Country string
	Lat     *float64
	Lng     *float64
}

// Locator resolves an IP address. Implementations must honour ctx.
type Locator interface {
	Lookup(ctx context.Context, ip string) (*Result, error)
}

// Noop never resolves anything; used when no database is configured
type Noop struct{}

func (Noop) Lookup(context.Context, string) (*Result, error) { return nil, ErrNotFound }

// cityRecord is the subset of a GeoLite2/GeoIP2 City record we read
type cityRecord struct {
	City struct {
		Names map[string]string `maxminddb:"names"`
	} `maxminddb:"city"`
	Subdivisions []struct {
		IsoCode string `maxminddb:"iso_code"`
	} `maxminddb:"subdivisions"`
	Country struct {
		IsoCode string `maxminddb:"iso_code"`
	} `maxminddb:"country"`
	Location struct {
		Latitude  *float64 `maxminddb:"latitude"`
		Longitude *float64 `maxminddb:"longitude"`
	} `maxminddb:"location"`
}

// MaxMind resolves addresses from a local MaxMind City database
type MaxMind struct {
	reader *maxminddb.Reader
}

// OpenMaxMind opens a .mmdb file
func OpenMaxMind(path string) (*MaxMind, error) {
	reader, err := maxminddb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open maxmind db: %w", err)
	}
	return &MaxMind{reader: reader}, nil
}

// Close releases the database
func (m *MaxMind) Close() error {
	return m.reader.Close()
}

// Lookup resolves ip, giving up when ctx is done
func (m *MaxMind) Lookup(ctx context.Context, ip string) (*Result, error) {
	addr := ParseIP(ip)
	if addr == nil {
		return nil, ErrNotFound
	}

	type outcome struct {
		res *Result
		err error
	}
	done := make(chan outcome, 1)

	go func() {
		var rec cityRecord
		if err := m.reader.Lookup(addr, &rec); err != nil {
			done <- outcome{err: fmt.Errorf("maxmind lookup: %w", err)}
			return
		}
		done <- outcome{res: toResult(rec)}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case out := <-done:
		if out.err != nil {
			return nil, out.err
		}
		if out.res == nil {
			return nil, ErrNotFound
		}
		return out.res, nil
	}
}

func toResult(rec cityRecord) *Result {
	res := &Result{
		City:    rec.City.Names["en"],
		Country: rec.Country.IsoCode,
		Lat:     rec.Location.Latitude,
		Lng:     rec.Location.Longitude,
	}
	if len(rec.Subdivisions) > 0 {
		res.Region = rec.Subdivisions[0].IsoCode
	}
	if res.City == "" && res.Region == "" && res.Country == "" && res.Lat == nil {
		return nil
	}
	return res
}

// ParseIP parses an address as seen by an HTTP server, unwrapping the
// IPv4-mapped IPv6 form ("::ffff:1.2.3.4")
func ParseIP(raw string) net.IP {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "::ffff:")
	ip := net.ParseIP(raw)
	if ip == nil {
		return nil
	}
	if v4 := ip.To4(); v4 != nil {
		return v4
	}
	return ip
}

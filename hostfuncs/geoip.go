package hostfuncs

import (
	"errors"
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"
)

// ErrNoGeoIPDatabase is returned when no country database is configured.
var ErrNoGeoIPDatabase = errors.New("no GeoIP database configured")

// CountryLookup maps an address to an ISO-3166 country code.
type CountryLookup interface {
	LookupCountry(ip net.IP) (string, error)
}

// MmdbReader implements CountryLookup on a MaxMind MMDB file.
type MmdbReader struct {
	db *geoip2.Reader
}

// NewMmdbReader opens the MMDB file at path.
func NewMmdbReader(path string) (*MmdbReader, error) {
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open MMDB file: %w", err)
	}
	return &MmdbReader{db: db}, nil
}

// LookupCountry returns the ISO country code for ip, empty when the database
// has no country for it.
func (r *MmdbReader) LookupCountry(ip net.IP) (string, error) {
	record, err := r.db.Country(ip)
	if err != nil {
		return "", fmt.Errorf("country lookup failed: %w", err)
	}
	return record.Country.IsoCode, nil
}

func (r *MmdbReader) Close() error {
	return r.db.Close()
}

// CountryText classifies text with ClassifyIP and looks up its country.
// The result is "[<ip>] Country: <ISO>" or an "Error: ..." line.
func CountryText(lookup CountryLookup, text string) string {
	class, err := ClassifyIP(text)
	if err != nil {
		return InvalidIPText
	}
	if lookup == nil {
		return "Error: " + ErrNoGeoIPDatabase.Error()
	}

	code, err := lookup.LookupCountry(net.IP(class.Addr.AsSlice()))
	if err != nil {
		return "Error: " + err.Error()
	}
	if code == "" {
		code = "unknown"
	}
	return fmt.Sprintf("[%s] Country: %s", class.Addr, code)
}

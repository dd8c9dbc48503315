package bridge

import (
	"log/slog"
	"net"
	"sync"

	"github.com/vss-interop/vss-go-interop/hostfuncs"
)

// geoIP opens the configured MMDB file on first lookup and reopens it when
// the configured path changes.
type geoIP struct {
	mu     sync.Mutex
	path   string
	reader *hostfuncs.MmdbReader
	err    error
	opened string
}

func (g *geoIP) setPath(path string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if path != g.path || g.err != nil {
		_ = g.closeLocked()
	}
	g.path = path
}

// LookupCountry holds the lock for the whole lookup so a concurrent path
// change cannot close the reader underneath it.
func (g *geoIP) LookupCountry(ip net.IP) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	reader, err := g.currentLocked()
	if err != nil {
		return "", err
	}
	return reader.LookupCountry(ip)
}

func (g *geoIP) currentLocked() (*hostfuncs.MmdbReader, error) {
	if g.path == "" {
		return nil, hostfuncs.ErrNoGeoIPDatabase
	}
	if g.opened == g.path && (g.reader != nil || g.err != nil) {
		return g.reader, g.err
	}

	_ = g.closeLocked()
	g.opened = g.path
	g.reader, g.err = hostfuncs.NewMmdbReader(g.path)
	if g.err != nil {
		slog.Warn("GeoIP database unavailable", "path", g.path, "error", g.err)
	} else {
		slog.Info("GeoIP database loaded", "path", g.path)
	}
	return g.reader, g.err
}

func (g *geoIP) close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closeLocked()
}

func (g *geoIP) closeLocked() error {
	var err error
	if g.reader != nil {
		err = g.reader.Close()
	}
	g.reader, g.err, g.opened = nil, nil, ""
	return err
}

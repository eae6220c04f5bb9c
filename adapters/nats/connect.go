package nats

import (
	"os"
	"sync"

	natsgo "github.com/nats-io/nats.go"
)

// Release gives a connection back to whoever handed it out.
type Release = func()

// Connector opens a connection and returns the func releasing it.
type Connector func() (*natsgo.Conn, Release, error)

// sharedConn hands out one underlying connection to many holders and
// counts them.
type sharedConn struct {
	dial Connector

	mu      sync.Mutex
	nc      *natsgo.Conn
	release Release
	holders int
}

func (s *sharedConn) acquire() (*natsgo.Conn, Release, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nc == nil {
		nc, release, err := s.dial()
		if err != nil {
			return nil, nil, err
		}
		s.nc, s.release = nc, release
	}
	s.holders++

	var once sync.Once
	return s.nc, func() { once.Do(s.drop) }, nil
}

// drop closes the connection when the last holder is gone. The next acquire
// dials again.
func (s *sharedConn) drop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holders--
	if s.holders > 0 {
		return
	}
	s.release()
	s.nc, s.release = nil, nil
}

// ReuseConnection shares one connection between every caller of the returned
// Connector. Each Release counts once, no matter how often it is called.
func ReuseConnection(connect Connector) Connector {
	s := &sharedConn{dial: connect}
	return s.acquire
}

// ConnectURL dials natsURL. opts are applied after the defaults, which name
// the connection and bound reconnects.
func ConnectURL(natsURL string, opts ...natsgo.Option) Connector {
	defaults := []natsgo.Option{
		natsgo.Name("stream-go"),
		natsgo.MaxReconnects(3),
	}
	return func() (*natsgo.Conn, Release, error) {
		nc, err := natsgo.Connect(natsURL, append(defaults, opts...)...)
		if err != nil {
			return nil, nil, err
		}
		return nc, nc.Close, nil
	}
}

// ConnectDefault dials $NATS_URL, or the local default server when unset.
func ConnectDefault() Connector {
	natsURL, ok := os.LookupEnv("NATS_URL")
	if !ok || natsURL == "" {
		natsURL = natsgo.DefaultURL
	}
	return ConnectURL(natsURL)
}

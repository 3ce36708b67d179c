// Package discovery is the zero-config notification source of spec §6:
// it emits candidate (host, port) node endpoints found on the local
// network via mDNS, using github.com/hashicorp/mdns for both advertising
// the Master and browsing for nodes.
package discovery

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/cuemby/taskmaster/pkg/log"
	"github.com/hashicorp/mdns"
)

// ServiceName is the mDNS service type nodes advertise themselves under
// and the Master browses for.
const ServiceName = "_taskmaster-node._tcp"

// Candidate is one discovered (host, port) endpoint.
type Candidate struct {
	Host string
	Port int
}

// Listener periodically browses mDNS for node advertisements and emits
// every candidate found on each browse on Candidates; it does not
// de-duplicate.
type Listener struct {
	Candidates chan Candidate

	interval time.Duration
}

// NewListener creates a Listener that polls for new nodes every
// interval.
func NewListener(interval time.Duration) *Listener {
	return &Listener{
		Candidates: make(chan Candidate, 32),
		interval:   interval,
	}
}

// Run browses mDNS on a fixed interval until ctx is cancelled. Each
// advertisement found is sent on Candidates (non-blocking; a full
// buffer drops the candidate, it will be re-advertised next cycle).
func (l *Listener) Run(ctx context.Context) error {
	logger := log.WithComponent("discovery")
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := l.browseOnce(ctx); err != nil {
				logger.Warn().Err(err).Msg("mdns browse failed")
			}
		}
	}
}

func (l *Listener) browseOnce(ctx context.Context) error {
	entries := make(chan *mdns.ServiceEntry, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range entries {
			host := e.Host
			if e.AddrV4 != nil {
				host = e.AddrV4.String()
			}
			select {
			case l.Candidates <- Candidate{Host: host, Port: e.Port}:
			default:
			}
		}
	}()

	err := mdns.Query(&mdns.QueryParam{
		Service: ServiceName,
		Timeout: 2 * time.Second,
		Entries: entries,
	})
	close(entries)
	<-done
	if err != nil {
		return fmt.Errorf("mdns query: %w", err)
	}
	return nil
}

// Advertise registers the local node process under ServiceName so other
// Masters/tooling can discover it. Returns a shutdown func.
func Advertise(instance, host string, port int) (func() error, error) {
	ips, err := net.LookupIP(host)
	if err != nil || len(ips) == 0 {
		ips = []net.IP{net.ParseIP("127.0.0.1")}
	}
	service, err := mdns.NewMDNSService(instance, ServiceName, "", "", port, ips, nil)
	if err != nil {
		return nil, fmt.Errorf("build mdns service: %w", err)
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("start mdns server: %w", err)
	}
	return server.Shutdown, nil
}

// Package discovery advertises the status page over mDNS once the device
// has joined a station network.
package discovery

import (
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"
)

const (
	// ServiceType is the advertised mDNS service type.
	ServiceType = "_http._tcp"

	// ServiceDomain is the mDNS domain.
	ServiceDomain = "local."

	// DefaultPort is used when the listen address carries no port.
	DefaultPort = 80
)

type server interface {
	Shutdown()
}

type registerFunc func(instance, service, domain string, port int, text []string, ifaces []net.Interface) (server, error)

func zeroconfRegister(instance, service, domain string, port int, text []string, ifaces []net.Interface) (server, error) {
	return zeroconf.Register(instance, service, domain, port, text, ifaces)
}

// Advertiser publishes one _http._tcp service instance.
type Advertiser struct {
	instance string
	port     int
	register registerFunc
	log      *zap.Logger

	mu     sync.Mutex
	server server
}

// NewAdvertiser creates an Advertiser for instance on port.
func NewAdvertiser(instance string, port int, log *zap.Logger) *Advertiser {
	if log == nil {
		log = zap.NewNop()
	}
	return &Advertiser{instance: instance, port: port, register: zeroconfRegister, log: log}
}

// Advertise (re)registers the service, replacing any earlier registration.
func (a *Advertiser) Advertise(ip string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
	srv, err := a.register(a.instance, ServiceType, ServiceDomain, a.port, TXT(ip), nil)
	if err != nil {
		return fmt.Errorf("register mDNS service %q: %w", a.instance, err)
	}
	a.server = srv
	a.log.Info("mDNS service registered",
		zap.String("instance", a.instance),
		zap.String("service", ServiceType),
		zap.Int("port", a.port),
		zap.String("ip", ip))
	return nil
}

// Shutdown withdraws the service.
func (a *Advertiser) Shutdown() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
}

// TXT returns the TXT records for the service.
func TXT(ip string) []string {
	txt := []string{"path=/", "json=/index.json"}
	if ip != "" {
		txt = append(txt, "ip="+ip)
	}
	return txt
}

// PortFromAddr extracts the port from a listen address such as ":80".
func PortFromAddr(addr string) (int, error) {
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, fmt.Errorf("parse listen address %q: %w", addr, err)
	}
	if p == "" {
		return DefaultPort, nil
	}
	port, err := strconv.Atoi(p)
	if err != nil || port <= 0 || port > 65535 {
		return 0, fmt.Errorf("parse listen address %q: invalid port", addr)
	}
	return port, nil
}

// Package mdns advertises and discovers link endpoints over DNS-SD.
package mdns

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"

	"github.com/grandcat/zeroconf"
)

const (
	// StreamService is the DNS-SD type of a receiver's sample stream.
	StreamService = "_fhss-iq._tcp"
	// TelemetryService is the DNS-SD type of the telemetry web server.
	TelemetryService = "_fhss-web._tcp"
	domain           = "local."
)

// Host represents a discovered endpoint.
type Host struct {
	Instance  string // Advertised name: "hoprx on bench"
	Hostname  string // DNS hostname: "bench.local."
	Addresses []net.IP
	Port      int
	TXT       []string
}

// Value returns the TXT record value for key.
func (h Host) Value(key string) (string, bool) {
	prefix := key + "="
	for _, kv := range h.TXT {
		if v, ok := strings.CutPrefix(kv, prefix); ok {
			return v, true
		}
	}
	return "", false
}

// Addr returns host:port for the first address, preferring IPv4.
func (h Host) Addr() (string, bool) {
	var pick net.IP
	for _, ip := range h.Addresses {
		if ip.To4() != nil {
			pick = ip
			break
		}
		if pick == nil {
			pick = ip
		}
	}
	if pick == nil {
		return "", false
	}
	return net.JoinHostPort(pick.String(), strconv.Itoa(h.Port)), true
}

// TXT renders kv as sorted key=value records.
func TXT(kv map[string]string) []string {
	out := make([]string, 0, len(kv))
	for k, v := range kv {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// Advertisement is a running DNS-SD registration.
type Advertisement struct {
	server *zeroconf.Server
}

// Advertise registers instance under service on all interfaces.
func Advertise(instance, service string, port int, txt []string) (*Advertisement, error) {
	srv, err := zeroconf.Register(instance, service, domain, port, txt, nil)
	if err != nil {
		return nil, fmt.Errorf("register %s: %w", service, err)
	}
	return &Advertisement{server: srv}, nil
}

// Shutdown withdraws the registration.
func (a *Advertisement) Shutdown() {
	if a != nil && a.server != nil {
		a.server.Shutdown()
	}
}

// Discover browses for service until ctx is done and returns cleaned,
// deduplicated host entries.
func Discover(ctx context.Context, service string) ([]Host, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("resolver error: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	resultMap := make(map[string]Host)

	// Consumer goroutine
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case e, ok := <-entries:
				if !ok {
					return
				}
				if e == nil {
					continue
				}

				// Consolidate IPs (both v4 and v6)
				addrs := make([]net.IP, 0, len(e.AddrIPv4)+len(e.AddrIPv6))
				addrs = append(addrs, e.AddrIPv4...)
				addrs = append(addrs, e.AddrIPv6...)

				// Pick a stable key
				key := fmt.Sprintf("%s|%d", e.HostName, e.Port)

				resultMap[key] = Host{
					Instance:  cleanInstance(e.Instance),
					Hostname:  e.HostName,
					Addresses: addrs,
					Port:      e.Port,
					TXT:       append([]string{}, e.Text...),
				}

			case <-ctx.Done():
				return
			}
		}
	}()

	if err := resolver.Browse(ctx, service, domain, entries); err != nil {
		return nil, fmt.Errorf("browse error: %w", err)
	}

	<-done

	out := make([]Host, 0, len(resultMap))
	for _, h := range resultMap {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Instance < out[j].Instance })
	return out, nil
}

// cleanInstance removes Zeroconf escape sequences: "\ " => " "
func cleanInstance(s string) string {
	return strings.ReplaceAll(s, `\ `, " ")
}

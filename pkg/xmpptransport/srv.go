package xmpptransport

import (
	"context"
	"net"
	"sort"
	"strconv"
	"strings"

	"github.com/miekg/dns"
	"github.com/pkg/errors"
)

// RFC 6120  3.2.1  Preferred Process: SRV Lookup

const clientService = "_xmpp-client._tcp."

// ErrServiceUnavailable is returned when the domain publishes a single
// SRV record with target ".".
var ErrServiceUnavailable = errors.New("xmpptransport: domain does not offer client service")

// LookupClientSRV returns the host:port candidates of domain ordered by
// priority and weight. server is the DNS server to ask; the system
// configuration is used when it is empty.
func LookupClientSRV(ctx context.Context, server, domain string) ([]string, error) {
	if server == "" {
		conf, err := dns.ClientConfigFromFile("/etc/resolv.conf")
		if err != nil {
			return nil, errors.Wrap(err, "unable to read resolver configuration")
		}
		if len(conf.Servers) == 0 {
			return nil, errors.New("no DNS server configured")
		}
		server = net.JoinHostPort(conf.Servers[0], conf.Port)
	}

	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(clientService+domain), dns.TypeSRV)
	m.RecursionDesired = true

	client := new(dns.Client)
	in, _, err := client.ExchangeContext(ctx, m, server)
	if err != nil {
		return nil, errors.Wrap(err, "srv lookup failed")
	}
	if in.Rcode != dns.RcodeSuccess {
		return nil, errors.Errorf("srv lookup failed: %s", dns.RcodeToString[in.Rcode])
	}

	var records []*dns.SRV
	for _, rr := range in.Answer {
		if srv, ok := rr.(*dns.SRV); ok {
			records = append(records, srv)
		}
	}
	//TODO: weighted random selection within a priority (RFC 2782)
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Priority != records[j].Priority {
			return records[i].Priority < records[j].Priority
		}
		return records[i].Weight > records[j].Weight
	})

	var addrs []string
	for _, srv := range records {
		target := strings.TrimSuffix(srv.Target, ".")
		if target == "" {
			if len(records) == 1 {
				return nil, ErrServiceUnavailable
			}
			continue
		}
		addrs = append(addrs, net.JoinHostPort(target, strconv.Itoa(int(srv.Port))))
	}
	return addrs, nil
}

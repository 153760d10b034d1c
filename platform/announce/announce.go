// Package announce advertises this router's Thread Border Agent service
// over mDNS/DNS-SD, so commissioners can discover it on the local network —
// the same _meshcop._udp advertisement a real OpenThread Border Router
// makes. Grounded directly on the teacher's src/dns_sd.go, which uses the
// identical github.com/brutella/dnssd pure-Go responder to announce a
// KISS-over-TCP service.
package announce

import (
	"context"
	"fmt"

	"github.com/brutella/dnssd"
)

// ServiceType is the standard Thread commissioning service type.
const ServiceType = "_meshcop._udp"

// Announcer advertises the border-agent service until Stop is called.
type Announcer struct {
	responder dnssd.Responder
	cancel    context.CancelFunc
}

// Start advertises instanceName on port, returning once the service is
// registered; the responder itself runs in the background until Stop.
func Start(instanceName string, port int) (*Announcer, error) {
	cfg := dnssd.Config{
		Name: instanceName,
		Type: ServiceType,
		Port: port,
	}

	svc, err := dnssd.NewService(cfg)
	if err != nil {
		return nil, fmt.Errorf("announce: create service: %w", err)
	}

	responder, err := dnssd.NewResponder()
	if err != nil {
		return nil, fmt.Errorf("announce: create responder: %w", err)
	}

	if _, err := responder.Add(svc); err != nil {
		return nil, fmt.Errorf("announce: add service: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &Announcer{responder: responder, cancel: cancel}

	go func() {
		_ = responder.Respond(ctx)
	}()

	return a, nil
}

// Stop withdraws the advertisement.
func (a *Announcer) Stop() {
	a.cancel()
}

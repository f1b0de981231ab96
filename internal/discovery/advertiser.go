package discovery

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/sirupsen/logrus"

	"github.com/orrn/inkwell/internal/printer"
)

var ErrAllRegistrationsFailed = errors.New("all service type registrations failed")

// registrar abstracts zeroconf.Register for tests.
type registrar func(instance, service, domain string, port int, text []string) (registration, error)

type registration interface {
	Shutdown()
}

func zeroconfRegister(instance, service, domain string, port int, text []string) (registration, error) {
	return zeroconf.Register(instance, service, domain, port, text, nil)
}

// Advertiser publishes the device identity over mDNS under every configured
// service type at once. Each type holds its own registration handle with an
// independent retry lifecycle, so one alias failing never takes down the
// others.
type Advertiser struct {
	identity   printer.Identity
	txt        []string
	retryDelay time.Duration
	register   registrar
	log        *logrus.Entry

	mu      sync.Mutex
	handles map[string]registration

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewAdvertiser(identity printer.Identity, catalog *printer.Catalog, retryDelay time.Duration, log *logrus.Logger) *Advertiser {
	if retryDelay <= 0 {
		retryDelay = 15 * time.Second
	}
	return &Advertiser{
		identity:   identity,
		txt:        txtRecord(identity, catalog),
		retryDelay: retryDelay,
		register:   zeroconfRegister,
		log:        log.WithField("component", "discovery"),
		handles:    make(map[string]registration),
		stopCh:     make(chan struct{}),
	}
}

// txtRecord builds the Bonjour TXT metadata for the printer. Identical
// records are published under every service type, so a client browsing an
// alias type resolves the same instance.
func txtRecord(id printer.Identity, catalog *printer.Catalog) []string {
	pdl := ""
	for i, format := range catalog.Formats() {
		if i > 0 {
			pdl += ","
		}
		pdl += format
	}

	return []string{
		"txtvers=1",
		"qtotal=1",
		"rp=" + id.ResourcePath,
		"ty=" + id.Name,
		"adminurl=" + id.AdminURL(),
		"note=" + id.Name,
		"pdl=" + pdl,
		"UUID=" + id.UUID,
		"Color=T",
		"Duplex=F",
		"Staple=F",
		"Copies=T",
		"printer-state=3",
		"printer-type=0x0",
	}
}

// Start registers every configured service type. Individual failures are
// retried in the background; it is fatal only when no type registered at
// all, since an undiscoverable printer is useless.
func (a *Advertiser) Start() error {
	registered := 0
	for _, serviceType := range a.identity.ServiceTypes {
		if err := a.registerType(serviceType); err != nil {
			a.log.WithError(err).WithField("service_type", serviceType).
				Warn("registration failed, will retry")
			continue
		}
		registered++
	}
	if registered == 0 {
		return fmt.Errorf("%w: %v", ErrAllRegistrationsFailed, a.identity.ServiceTypes)
	}

	a.wg.Add(1)
	go a.refreshLoop()

	a.log.WithFields(logrus.Fields{
		"instance": a.identity.Name,
		"port":     a.identity.Port,
		"types":    a.identity.ServiceTypes,
	}).Info("printer advertised")

	return nil
}

func (a *Advertiser) registerType(serviceType string) error {
	handle, err := a.register(a.identity.Name, serviceType, "local.", a.identity.Port, a.txt)
	if err != nil {
		return fmt.Errorf("register %s: %w", serviceType, err)
	}

	a.mu.Lock()
	a.handles[serviceType] = handle
	a.mu.Unlock()
	return nil
}

// refreshLoop withdraws and re-announces every registration on each tick and
// re-attempts dead ones. Register gives no failure signal once it returns,
// so periodic republishing is what recovers mDNS state lost to a network
// outage after startup.
func (a *Advertiser) refreshLoop() {
	defer a.wg.Done()

	ticker := time.NewTicker(a.retryDelay)
	defer ticker.Stop()

	for {
		select {
		case <-a.stopCh:
			return
		case <-ticker.C:
			for _, serviceType := range a.identity.ServiceTypes {
				a.mu.Lock()
				handle, live := a.handles[serviceType]
				if live {
					handle.Shutdown()
					delete(a.handles, serviceType)
				}
				a.mu.Unlock()

				if err := a.registerType(serviceType); err != nil {
					a.log.WithError(err).WithField("service_type", serviceType).
						Debug("registration attempt failed")
					continue
				}
				if !live {
					a.log.WithField("service_type", serviceType).Info("registration recovered")
				}
			}
		}
	}
}

// Registered reports the service types currently holding a live handle.
func (a *Advertiser) Registered() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	types := make([]string, 0, len(a.handles))
	for t := range a.handles {
		types = append(types, t)
	}
	return types
}

// Stop withdraws every registration.
func (a *Advertiser) Stop() {
	close(a.stopCh)
	a.wg.Wait()

	a.mu.Lock()
	defer a.mu.Unlock()
	for serviceType, handle := range a.handles {
		handle.Shutdown()
		delete(a.handles, serviceType)
	}
}

package discovery

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orrn/inkwell/internal/printer"
)

type fakeHandle struct {
	shutdowns *int
	mu        *sync.Mutex
}

func (f *fakeHandle) Shutdown() {
	f.mu.Lock()
	*f.shutdowns++
	f.mu.Unlock()
}

type fakeRegistrar struct {
	mu        sync.Mutex
	calls     []registerCall
	failTypes map[string]int // service type -> remaining failures
	shutdowns int
}

type registerCall struct {
	instance string
	service  string
	port     int
	text     []string
}

func (f *fakeRegistrar) register(instance, service, domain string, port int, text []string) (registration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, registerCall{instance: instance, service: service, port: port, text: text})
	if remaining, ok := f.failTypes[service]; ok && remaining > 0 {
		f.failTypes[service] = remaining - 1
		return nil, errors.New("network unreachable")
	}
	return &fakeHandle{shutdowns: &f.shutdowns, mu: &f.mu}, nil
}

func (f *fakeRegistrar) setFailures(service string, n int) {
	f.mu.Lock()
	if f.failTypes == nil {
		f.failTypes = make(map[string]int)
	}
	f.failTypes[service] = n
	f.mu.Unlock()
}

func (f *fakeRegistrar) callCount(service string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.service == service {
			n++
		}
	}
	return n
}

func (f *fakeRegistrar) shutdownCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.shutdowns
}

func testAdvertiser(t *testing.T, reg *fakeRegistrar, retryDelay time.Duration) *Advertiser {
	t.Helper()

	identity, err := printer.NewIdentity(printer.IdentityConfig{
		Name:         "HP LaserJet Pro M404dn",
		Port:         6310,
		ResourcePath: "printers/fake_printer",
		ServiceTypes: []string{"_ipp._tcp", "_ipp._tcp,_universal"},
	})
	require.NoError(t, err)

	catalog, err := printer.NewCatalog(identity)
	require.NoError(t, err)

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	a := NewAdvertiser(identity, catalog, retryDelay, log)
	a.register = reg.register
	return a
}

func TestStartRegistersEveryServiceType(t *testing.T) {
	reg := &fakeRegistrar{}
	a := testAdvertiser(t, reg, time.Minute)

	require.NoError(t, a.Start())
	defer a.Stop()

	assert.ElementsMatch(t, []string{"_ipp._tcp", "_ipp._tcp,_universal"}, a.Registered())

	// both registrations carry the same instance, port and metadata, so a
	// client browsing either type resolves the identical printer
	require.Len(t, reg.calls, 2)
	assert.Equal(t, reg.calls[0].instance, reg.calls[1].instance)
	assert.Equal(t, reg.calls[0].port, reg.calls[1].port)
	assert.Equal(t, reg.calls[0].text, reg.calls[1].text)
	assert.Equal(t, 6310, reg.calls[0].port)
}

func TestOneTypeFailingDoesNotAbortOthers(t *testing.T) {
	reg := &fakeRegistrar{failTypes: map[string]int{"_ipp._tcp,_universal": 1}}
	a := testAdvertiser(t, reg, 20*time.Millisecond)

	require.NoError(t, a.Start())
	defer a.Stop()

	assert.ElementsMatch(t, []string{"_ipp._tcp"}, a.Registered())

	// the failed alias recovers on the next tick
	assert.True(t, eventually(2*time.Second, func() bool {
		return len(a.Registered()) == 2
	}), "universal alias never recovered")
}

func eventually(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

func TestLiveRegistrationsRepublishOnTicker(t *testing.T) {
	reg := &fakeRegistrar{}
	a := testAdvertiser(t, reg, 20*time.Millisecond)

	require.NoError(t, a.Start())
	defer a.Stop()

	// each tick withdraws the live handle and announces a fresh one
	assert.True(t, eventually(2*time.Second, func() bool {
		return reg.callCount("_ipp._tcp") >= 3 && reg.shutdownCount() >= 2
	}), "live registration was never republished")
}

func TestRefreshRecoversRegistrationLostAfterStartup(t *testing.T) {
	reg := &fakeRegistrar{}
	a := testAdvertiser(t, reg, 20*time.Millisecond)

	require.NoError(t, a.Start())
	defer a.Stop()

	// the next re-announce for the alias fails once, as if the network
	// dropped after a clean start
	reg.setFailures("_ipp._tcp,_universal", 1)

	assert.True(t, eventually(2*time.Second, func() bool {
		return reg.callCount("_ipp._tcp,_universal") >= 3
	}), "alias was never re-attempted after the failed refresh")

	assert.True(t, eventually(2*time.Second, func() bool {
		return len(a.Registered()) == 2
	}), "alias did not recover after the failed refresh")
}

func TestAllTypesFailingIsFatal(t *testing.T) {
	reg := &fakeRegistrar{failTypes: map[string]int{
		"_ipp._tcp":            1,
		"_ipp._tcp,_universal": 1,
	}}
	a := testAdvertiser(t, reg, time.Minute)

	err := a.Start()
	assert.ErrorIs(t, err, ErrAllRegistrationsFailed)
}

func TestStopWithdrawsRegistrations(t *testing.T) {
	reg := &fakeRegistrar{}
	a := testAdvertiser(t, reg, time.Minute)

	require.NoError(t, a.Start())
	a.Stop()

	reg.mu.Lock()
	defer reg.mu.Unlock()
	assert.Equal(t, 2, reg.shutdowns)
	assert.Empty(t, a.Registered())
}

func TestTXTRecordContents(t *testing.T) {
	identity, err := printer.NewIdentity(printer.IdentityConfig{
		Name:         "HP LaserJet Pro M404dn",
		Port:         6310,
		ResourcePath: "printers/fake_printer",
		ServiceTypes: []string{"_ipp._tcp"},
	})
	require.NoError(t, err)

	catalog, err := printer.NewCatalog(identity)
	require.NoError(t, err)

	txt := txtRecord(identity, catalog)

	assert.Contains(t, txt, "txtvers=1")
	assert.Contains(t, txt, "rp=printers/fake_printer")
	assert.Contains(t, txt, "ty=HP LaserJet Pro M404dn")
	assert.Contains(t, txt, "UUID="+identity.UUID)
	assert.Contains(t, txt, "printer-state=3")

	var pdl string
	for _, entry := range txt {
		if len(entry) > 4 && entry[:4] == "pdl=" {
			pdl = entry
		}
	}
	assert.Contains(t, pdl, "application/pdf")
	assert.Contains(t, pdl, "application/postscript")
}

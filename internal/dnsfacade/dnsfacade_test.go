package dnsfacade

import (
	"context"
	"fmt"
	"testing"

	"github.com/chasquid-tools/mailverify/internal/cache"
)

type fakeResolver struct {
	mx      map[string][]MxRecord
	mxErr   map[string]error
	hostErr map[string]error
}

func (f *fakeResolver) LookupMX(ctx context.Context, name string) ([]MxRecord, error) {
	if err, ok := f.mxErr[name]; ok {
		return nil, err
	}
	return f.mx[name], nil
}

func (f *fakeResolver) LookupHost(ctx context.Context, host string) ([]string, error) {
	if err, ok := f.hostErr[host]; ok {
		return nil, err
	}
	return []string{"127.0.0.2"}, nil
}

func newFakeFacade() (*Facade, *fakeResolver) {
	r := &fakeResolver{mx: map[string][]MxRecord{}, mxErr: map[string]error{}, hostErr: map[string]error{}}
	return New(r, cache.NewMap()), r
}

func TestMxHostsSortedByPreference(t *testing.T) {
	f, r := newFakeFacade()
	r.mx["example.com."] = []MxRecord{
		{Host: "b.mx.example.com", Preference: 20},
		{Host: "a.mx.example.com", Preference: 10},
	}

	hosts, err := f.MxHostsForDomain(context.Background(), "example.com")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"a.mx.example.com", "b.mx.example.com"}
	if len(hosts) != 2 || hosts[0] != want[0] || hosts[1] != want[1] {
		t.Errorf("MxHostsForDomain = %v, want %v", hosts, want)
	}
}

func TestMxHostsTieBreakByHost(t *testing.T) {
	f, r := newFakeFacade()
	r.mx["example.com."] = []MxRecord{
		{Host: "z.mx.example.com", Preference: 10},
		{Host: "a.mx.example.com", Preference: 10},
	}

	hosts, err := f.MxHostsForDomain(context.Background(), "example.com")
	if err != nil {
		t.Fatal(err)
	}
	if hosts[0] != "a.mx.example.com" || hosts[1] != "z.mx.example.com" {
		t.Errorf("tie-break order = %v, want a before z", hosts)
	}
}

func TestMxHostsEmptyOnNoRecords(t *testing.T) {
	f, _ := newFakeFacade()
	hosts, err := f.MxHostsForDomain(context.Background(), "no-mx.test")
	if err != nil {
		t.Fatal(err)
	}
	if len(hosts) != 0 {
		t.Errorf("MxHostsForDomain = %v, want empty", hosts)
	}
}

func TestMxHostsCached(t *testing.T) {
	f, r := newFakeFacade()
	r.mx["example.com."] = []MxRecord{{Host: "mx.example.com", Preference: 10}}

	first, err := f.MxHostsForDomain(context.Background(), "example.com")
	if err != nil {
		t.Fatal(err)
	}

	// Mutate the backing resolver: a cached lookup must not see this.
	r.mx["example.com."] = nil

	second, err := f.MxHostsForDomain(context.Background(), "example.com")
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 1 || len(second) != 1 || first[0] != second[0] {
		t.Errorf("cache not honored: first=%v second=%v", first, second)
	}
}

func TestMxHostsForEmail(t *testing.T) {
	f, r := newFakeFacade()
	r.mx["example.com."] = []MxRecord{{Host: "mx.example.com", Preference: 10}}

	hosts, err := f.MxHostsForEmail(context.Background(), "user@EXAMPLE.com")
	if err != nil {
		t.Fatal(err)
	}
	if len(hosts) != 1 {
		t.Errorf("MxHostsForEmail = %v, want 1 host", hosts)
	}
}

func TestDNSDisabledShortCircuits(t *testing.T) {
	f := New(nil, cache.NewMap())
	hosts, err := f.MxHostsForDomain(context.Background(), "example.com")
	if err != nil {
		t.Fatal(err)
	}
	if hosts != nil {
		t.Errorf("MxHostsForDomain with disabled resolver = %v, want nil", hosts)
	}
}

func TestCheckRBLAllServersListed(t *testing.T) {
	f, _ := newFakeFacade()
	f.SetRBLServers([]string{"bl1.example", "bl2.example"})

	res, err := f.CheckRBL(context.Background(), "10.20.30.40")
	if err != nil {
		t.Fatal(err)
	}
	if res == nil {
		t.Fatalf("CheckRBL = nil, want a result (every server listed it)")
	}
	if res.Server != "bl2.example" {
		t.Errorf("CheckRBL returned server %q, want last matching (bl2.example)", res.Server)
	}
}

func TestCheckRBLNotAllServersListed(t *testing.T) {
	f, r := newFakeFacade()
	f.SetRBLServers([]string{"bl1.example", "bl2.example"})
	r.hostErr["40.30.20.10.bl2.example."] = fmt.Errorf("no such host")

	res, err := f.CheckRBL(context.Background(), "10.20.30.40")
	if err != nil {
		t.Fatal(err)
	}
	if res != nil {
		t.Errorf("CheckRBL = %v, want nil (not every server listed it)", res)
	}
}

func TestCheckRBLIPv6Unsupported(t *testing.T) {
	f, _ := newFakeFacade()
	res, err := f.CheckRBL(context.Background(), "::1")
	if err != nil {
		t.Fatal(err)
	}
	if res != nil {
		t.Errorf("CheckRBL(::1) = %v, want nil", res)
	}
}

func TestReverseIPv4(t *testing.T) {
	rev, ok := reverseIPv4("10.20.30.40")
	if !ok || rev != "40.30.20.10" {
		t.Errorf("reverseIPv4 = (%q, %v), want (40.30.20.10, true)", rev, ok)
	}
}

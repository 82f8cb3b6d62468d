package discovery

import (
	"errors"
	"net"
	"testing"

	"go.uber.org/zap"
)

type fakeServer struct{ shutdowns int }

func (s *fakeServer) Shutdown() { s.shutdowns++ }

type registration struct {
	instance, service, domain string
	port                      int
	text                      []string
}

func newTestAdvertiser() (*Advertiser, *[]registration, *[]*fakeServer) {
	var regs []registration
	var servers []*fakeServer
	a := NewAdvertiser("plant-waterer", 8080, zap.NewNop())
	a.register = func(instance, service, domain string, port int, text []string, _ []net.Interface) (server, error) {
		regs = append(regs, registration{instance, service, domain, port, text})
		s := &fakeServer{}
		servers = append(servers, s)
		return s, nil
	}
	return a, &regs, &servers
}

func TestAdvertiseRegistersService(t *testing.T) {
	a, regs, _ := newTestAdvertiser()

	if err := a.Advertise("192.168.1.50"); err != nil {
		t.Fatalf("Advertise: %v", err)
	}
	if len(*regs) != 1 {
		t.Fatalf("expected 1 registration, got %d", len(*regs))
	}
	r := (*regs)[0]
	if r.instance != "plant-waterer" || r.service != "_http._tcp" || r.domain != "local." || r.port != 8080 {
		t.Errorf("unexpected registration: %+v", r)
	}
	if len(r.text) != 3 || r.text[2] != "ip=192.168.1.50" {
		t.Errorf("unexpected TXT records: %v", r.text)
	}
}

func TestAdvertiseReplacesPreviousRegistration(t *testing.T) {
	a, regs, servers := newTestAdvertiser()

	_ = a.Advertise("192.168.1.50")
	_ = a.Advertise("192.168.1.51")
	if len(*regs) != 2 {
		t.Fatalf("expected 2 registrations, got %d", len(*regs))
	}
	if (*servers)[0].shutdowns != 1 {
		t.Error("first registration should have been shut down")
	}

	a.Shutdown()
	a.Shutdown()
	if (*servers)[1].shutdowns != 1 {
		t.Errorf("second registration shut down %d times, want 1", (*servers)[1].shutdowns)
	}
}

func TestAdvertiseError(t *testing.T) {
	a := NewAdvertiser("plant-waterer", 80, nil)
	a.register = func(string, string, string, int, []string, []net.Interface) (server, error) {
		return nil, errors.New("no multicast interface")
	}
	if err := a.Advertise(""); err == nil {
		t.Error("expected error")
	}
	a.Shutdown()
}

func TestTXT(t *testing.T) {
	if got := TXT(""); len(got) != 2 {
		t.Errorf("TXT without ip: %v", got)
	}
}

func TestPortFromAddr(t *testing.T) {
	tests := []struct {
		addr    string
		want    int
		wantErr bool
	}{
		{":80", 80, false},
		{"0.0.0.0:8080", 8080, false},
		{"[::]:443", 443, false},
		{"localhost", 0, true},
		{":http", 0, true},
		{":70000", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			got, err := PortFromAddr(tt.addr)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

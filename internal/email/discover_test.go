package email

import (
	"context"
	"errors"
	"net"
	"testing"
)

func fakeDiscoverer(reachable map[string]bool, mx []*net.MX) *Discoverer {
	return &Discoverer{
		Probe: func(_ context.Context, addr string) bool { return reachable[addr] },
		LookupMX: func(context.Context, string) ([]*net.MX, error) {
			if mx == nil {
				return nil, errors.New("no such host")
			}
			return mx, nil
		},
	}
}

func TestDiscover(t *testing.T) {
	tests := []struct {
		name      string
		reachable map[string]bool
		mx        []*net.MX
		want      string
		wantErr   bool
	}{
		{
			name:      "imap subdomain",
			reachable: map[string]bool{"imap.metu.edu.tr:993": true, "mail.metu.edu.tr:993": true},
			want:      "imap.metu.edu.tr:993",
		},
		{
			name:      "mail subdomain",
			reachable: map[string]bool{"mail.metu.edu.tr:993": true},
			want:      "mail.metu.edu.tr:993",
		},
		{
			name:      "bare domain",
			reachable: map[string]bool{"metu.edu.tr:993": true},
			want:      "metu.edu.tr:993",
		},
		{
			name:      "derived from MX",
			reachable: map[string]bool{"imap.mailhost.net:993": true},
			mx:        []*net.MX{{Host: "mx1.mailhost.net.", Pref: 10}},
			want:      "imap.mailhost.net:993",
		},
		{
			name:      "nothing reachable",
			reachable: map[string]bool{},
			mx:        []*net.MX{{Host: "mx1.mailhost.net.", Pref: 10}},
			wantErr:   true,
		},
		{
			name:      "no MX",
			reachable: map[string]bool{},
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := fakeDiscoverer(tt.reachable, tt.mx).Discover(context.Background(), "metu.edu.tr")
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Discover: %v", err)
			}
			if got != tt.want {
				t.Errorf("Discover = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDiscoverRejectsBadDomain(t *testing.T) {
	d := fakeDiscoverer(map[string]bool{}, nil)
	for _, domain := range []string{"", "a@b", "x y"} {
		if _, err := d.Discover(context.Background(), domain); err == nil {
			t.Errorf("Discover(%q) should fail", domain)
		}
	}
}

func TestDomainOf(t *testing.T) {
	tests := map[string]string{
		"e2250001@METU.edu.tr": "metu.edu.tr",
		"e2250001":             "",
		" a@b.edu ":            "b.edu",
	}
	for in, want := range tests {
		if got := DomainOf(in); got != want {
			t.Errorf("DomainOf(%q) = %q, want %q", in, got, want)
		}
	}
}

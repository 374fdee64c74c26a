package subdomain_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shopsphere/shopauth/subdomain"
)

const apex = "shop-sphere-auth-hub.vercel.app"

func TestFromHost(t *testing.T) {
	tests := []struct {
		name     string
		host     string
		wantSlug string
		wantOK   bool
	}{
		{"tenant subdomain", "alpha." + apex, "alpha", true},
		{"tenant subdomain with port", "alpha." + apex + ":443", "alpha", true},
		{"apex domain", apex, "", false},
		{"www prefix", "www." + apex, "", false},
		{"bare localhost", "localhost", "", false},
		{"bare localhost with port", "localhost:5173", "", false},
		{"localhost label", "localhost.example.com", "", false},
		{"tenant on dev host", "alpha.localhost.dev", "alpha", true},
		{"single label", "intranet", "", false},
		{"uppercase tenant normalized", "ALPHA." + apex, "alpha", true},
		{"empty host", "", "", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			slug, ok := subdomain.FromHost(tc.host, apex)
			require.Equal(t, tc.wantOK, ok)
			require.Equal(t, tc.wantSlug, slug)
		})
	}
}

func TestMainDomain(t *testing.T) {
	require.Equal(t, "localhost:5173", subdomain.MainDomain("localhost:5173", apex))
	require.Equal(t, "localhost", subdomain.MainDomain("localhost", apex))
	require.Equal(t, apex, subdomain.MainDomain("alpha."+apex, apex))
	require.Equal(t, apex, subdomain.MainDomain(apex, apex))
}

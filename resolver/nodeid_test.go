package resolver

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const testPubKey = "03864ef025fde8fb587d989186ce6a4a186895ee44a926bfc370e2" +
	"c366597a3f8f"

// TestIsNodeID asserts the pubkey@host:port predicate. Malformed input of
// any kind reports false, it never errors.
func TestIsNodeID(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name  string
		input string
		want  bool
	}{
		{
			name:  "ipv4",
			input: testPubKey + "@158.181.114.196:9735",
			want:  true,
		},
		{
			name:  "hostname",
			input: testPubKey + "@ln.example.com:9735",
			want:  true,
		},
		{
			name:  "onion",
			input: testPubKey + "@3g2upl4pq6kufc4m.onion:9735",
			want:  true,
		},
		{
			name:  "missing at",
			input: testPubKey + "158.181.114.196:9735",
			want:  false,
		},
		{
			name:  "two ats",
			input: testPubKey + "@host@158.181.114.196:9735",
			want:  false,
		},
		{
			name:  "short pubkey",
			input: testPubKey[:64] + "@158.181.114.196:9735",
			want:  false,
		},
		{
			name:  "invalid pubkey format byte",
			input: "05" + testPubKey[2:] + "@158.181.114.196:9735",
			want:  false,
		},
		{
			name:  "missing port",
			input: testPubKey + "@158.181.114.196",
			want:  false,
		},
		{
			name:  "port out of range",
			input: testPubKey + "@158.181.114.196:70000",
			want:  false,
		},
		{
			name:  "empty host",
			input: testPubKey + "@:9735",
			want:  false,
		},
	}
	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			require.Equal(t, tc.want, IsNodeID(tc.input))
		})
	}
}

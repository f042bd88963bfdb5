package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActorKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		userID       string
		forwardedFor string
		remoteAddr   string
		want         string
	}{
		{
			name:       "authenticated user",
			userID:     "u-42",
			remoteAddr: "10.0.0.1:5000",
			want:       "user:u-42",
		},
		{
			name:         "user wins over forwarded address",
			userID:       "u-42",
			forwardedFor: "203.0.113.9",
			remoteAddr:   "10.0.0.1:5000",
			want:         "user:u-42",
		},
		{
			name:         "forwarded single address",
			forwardedFor: "203.0.113.9",
			remoteAddr:   "10.0.0.1:5000",
			want:         "ip:203.0.113.9",
		},
		{
			name:         "forwarded chain uses first entry",
			forwardedFor: "203.0.113.9, 198.51.100.2, 10.0.0.1",
			remoteAddr:   "10.0.0.1:5000",
			want:         "ip:203.0.113.9",
		},
		{
			name:         "forwarded entry is trimmed",
			forwardedFor: "  203.0.113.9 , 10.0.0.1",
			remoteAddr:   "10.0.0.1:5000",
			want:         "ip:203.0.113.9",
		},
		{
			name:       "remote address with port",
			remoteAddr: "192.0.2.7:61234",
			want:       "ip:192.0.2.7",
		},
		{
			name:       "remote address without port",
			remoteAddr: "192.0.2.7",
			want:       "ip:192.0.2.7",
		},
		{
			name:       "ipv6 remote address",
			remoteAddr: "[2001:db8::1]:443",
			want:       "ip:2001:db8::1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := ActorKey(tt.userID, tt.forwardedFor, tt.remoteAddr)
			assert.Equal(t, tt.want, got)
		})
	}
}

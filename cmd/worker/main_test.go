package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractEndpointFromURL(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://api.mainnet-beta.solana.com", "mainnet"},
		{"https://api.devnet.solana.com", "devnet"},
		{"https://mainnet.helius-rpc.com/?api-key=secret", "helius"},
		{"https://example.quicknode.pro/abc", "quiknode"},
		{"https://solana-mainnet.g.alchemy.com/v2/key", "alchemy"},
		{"https://rpc.example.org", "rpc.example.org"},
		{"://bad", "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, extractEndpointFromURL(tt.url))
		})
	}
}

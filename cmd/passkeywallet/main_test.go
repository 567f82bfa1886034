package main

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ericfisherdev/passkeywallet/internal/adapter/driven/ceremony"
	"github.com/ericfisherdev/passkeywallet/internal/config"
)

func TestNewCeremonyProvider(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.Config
		wantMock bool
	}{
		{
			name:     "mock warns",
			cfg:      config.Config{CeremonyProvider: config.CeremonyMock, RPID: "localhost", CeremonyTimeout: time.Minute},
			wantMock: true,
		},
		{
			name: "relay is silent",
			cfg: config.Config{
				CeremonyProvider: config.CeremonyRelay,
				CeremonyRelayURL: "http://relay.internal",
				CeremonyTimeout:  time.Minute,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			log := slog.New(slog.NewTextHandler(&buf, nil))

			provider := newCeremonyProvider(&tt.cfg, log)

			_, isMock := provider.(*ceremony.MockAuthenticator)
			assert.Equal(t, tt.wantMock, isMock)
			if tt.wantMock {
				assert.Contains(t, buf.String(), "level=WARN")
				assert.Contains(t, buf.String(), "mock ceremony provider")
			} else {
				assert.Empty(t, buf.String())
			}
		})
	}
}

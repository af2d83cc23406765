package telemetry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/clipsearch/internal/telemetry"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  telemetry.Config
		wantErr bool
	}{
		{
			name:   "disabled needs nothing",
			config: telemetry.Config{},
		},
		{
			name: "enabled with endpoint",
			config: telemetry.Config{
				Enabled:  true,
				Endpoint: "localhost:4317",
			},
		},
		{
			name:    "enabled without endpoint",
			config:  telemetry.Config{Enabled: true},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNew_Disabled(t *testing.T) {
	tel, err := telemetry.New(context.Background(), &telemetry.Config{})
	require.NoError(t, err)
	require.NotNil(t, tel)

	// No providers were installed, shutdown has nothing to do.
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := telemetry.New(context.Background(), &telemetry.Config{Enabled: true})
	assert.Error(t, err)
}

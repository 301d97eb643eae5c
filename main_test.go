package main

import (
	"testing"

	"github.com/kwv/tpsmesh/rpm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePins(t *testing.T) {
	tests := []struct {
		name    string
		spec    string
		want    []rpm.PinnedPair
		wantErr bool
	}{
		{name: "empty", spec: "", want: nil},
		{name: "single", spec: "0=3", want: []rpm.PinnedPair{{Source: 0, Target: 3}}},
		{
			name: "multiple with spaces",
			spec: "0=3, 1=5",
			want: []rpm.PinnedPair{{Source: 0, Target: 3}, {Source: 1, Target: 5}},
		},
		{name: "trailing comma", spec: "2=4,", want: []rpm.PinnedPair{{Source: 2, Target: 4}}},
		{name: "missing equals", spec: "03", wantErr: true},
		{name: "non-numeric source", spec: "a=1", wantErr: true},
		{name: "non-numeric target", spec: "1=b", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parsePins(tt.spec)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEngineConfigDefaults(t *testing.T) {
	cfg := engineConfig()
	assert.Equal(t, 0.90, cfg.AnnealingRatio)
	assert.Equal(t, 5, cfg.InnerIters)
	assert.Equal(t, 10, cfg.SinkhornIters)
	assert.Equal(t, 0.1, cfg.Alpha)
	assert.False(t, cfg.BothSideOutlier)
}

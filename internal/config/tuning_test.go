package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTuningConfig(t *testing.T) {
	cfg := DefaultTuningConfig()

	if cfg.PositionXYProcessNoise == nil || *cfg.PositionXYProcessNoise != 1e-5 {
		t.Errorf("Expected PositionXYProcessNoise 1e-5, got %v", cfg.PositionXYProcessNoise)
	}
	if cfg.NotFoundTimeout == nil || *cfg.NotFoundTimeout != 300 {
		t.Errorf("Expected NotFoundTimeout 300, got %v", cfg.NotFoundTimeout)
	}
	if cfg.AngleNotFoundTimeout == nil || *cfg.AngleNotFoundTimeout != 90 {
		t.Errorf("Expected AngleNotFoundTimeout 90, got %v", cfg.AngleNotFoundTimeout)
	}
	if cfg.GetPopulationSize() != 200 {
		t.Errorf("GetPopulationSize() = %d, want 200", cfg.GetPopulationSize())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestEmptyConfigFallsBackToDefaults(t *testing.T) {
	cfg := EmptyTuningConfig()
	assert.Equal(t, 30.0, cfg.GetFramesPerSecond())
	assert.Equal(t, []int{1, 2, 3, 4}, cfg.GetReferenceMarkerIDs())
	assert.Equal(t, []int{45}, cfg.GetTargetMarkerIDs())
	assert.Equal(t, 16.0, cfg.GetRankSelectionMultiplier())
	assert.Equal(t, int64(1), cfg.GetRandomSeed())
}

func TestGetReferenceMarkerIDsReturnsCopy(t *testing.T) {
	cfg := &TuningConfig{ReferenceMarkerIDs: []int{7, 8, 9}}
	ids := cfg.GetReferenceMarkerIDs()
	ids[0] = 100
	assert.Equal(t, 7, cfg.ReferenceMarkerIDs[0])
}

func TestLoadTuningConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test_config.json")

	testJSON := `{
  "position_xy_process_noise": 10,
  "measurement_z_noise": 3,
  "frames_per_second": 25,
  "reference_marker_ids": [11, 12, 13],
  "population_size": 50
}`
	require.NoError(t, os.WriteFile(configPath, []byte(testJSON), 0644))

	cfg, err := LoadTuningConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, 10.0, cfg.GetPositionXYProcessNoise())
	assert.Equal(t, 3.0, cfg.GetMeasurementZNoise())
	assert.Equal(t, 25.0, cfg.GetFramesPerSecond())
	assert.Equal(t, 50, cfg.GetPopulationSize())
	if diff := cmp.Diff([]int{11, 12, 13}, cfg.GetReferenceMarkerIDs()); diff != "" {
		t.Errorf("reference ids mismatch (-want +got):\n%s", diff)
	}
	// Omitted fields keep their defaults.
	assert.Equal(t, 1e-8, cfg.GetPositionZProcessNoise())
	assert.Equal(t, 300, cfg.GetNotFoundTimeout())
}

func TestLoadTuningConfigErrors(t *testing.T) {
	tmpDir := t.TempDir()

	write := func(name, body string) string {
		p := filepath.Join(tmpDir, name)
		require.NoError(t, os.WriteFile(p, []byte(body), 0644))
		return p
	}

	testCases := []struct {
		name    string
		path    string
		wantErr string
	}{
		{"wrong extension", write("cfg.yaml", "{}"), ".json extension"},
		{"missing file", filepath.Join(tmpDir, "absent.json"), "failed to stat"},
		{"bad json", write("bad.json", "{"), "failed to parse"},
		{"negative noise", write("neg.json", `{"measurement_xy_noise": -1}`), "measurement_xy_noise"},
		{"zero population", write("pop.json", `{"population_size": 0}`), "population_size"},
		{"elite too large", write("elite.json", `{"elite_portion": 1.5}`), "elite_portion"},
		{"inverted clip", write("clip.json", `{"clip_min": 5, "clip_max": 1}`), "clip_min"},
		{"zero timeout", write("timeout.json", `{"not_found_timeout": 0}`), "not_found_timeout"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadTuningConfig(tc.path)
			require.Error(t, err)
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error %q does not mention %q", err, tc.wantErr)
			}
		})
	}
}

func TestLoadTuningConfigTooLarge(t *testing.T) {
	p := filepath.Join(t.TempDir(), "big.json")
	big := make([]byte, 1024*1024+1)
	for i := range big {
		big[i] = ' '
	}
	require.NoError(t, os.WriteFile(p, big, 0644))

	_, err := LoadTuningConfig(p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestMustLoadDefaultConfig(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	if diff := cmp.Diff(DefaultTuningConfig(), cfg); diff != "" {
		t.Errorf("defaults file and accessor defaults disagree (-want +got):\n%s", diff)
	}
}

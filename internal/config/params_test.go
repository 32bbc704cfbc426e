package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadDetectionParams(t *testing.T) {
	t.Parallel()

	t.Run("partial file keeps other fields nil", func(t *testing.T) {
		t.Parallel()
		path := writeTempConfig(t, "defaults.json", `{"vh_threshold": -22, "min_area_pixels": 50}`)
		cfg, err := LoadDetectionParams(path)
		require.NoError(t, err)

		require.NotNil(t, cfg.VHThreshold)
		assert.Equal(t, -22.0, *cfg.VHThreshold)
		require.NotNil(t, cfg.MinAreaPixels)
		assert.Equal(t, 50, *cfg.MinAreaPixels)
		assert.Nil(t, cfg.VVThreshold)
		assert.Nil(t, cfg.VVVHDiff)
		assert.Nil(t, cfg.TextureMax)
		assert.Nil(t, cfg.SlopeMax)
	})

	t.Run("rejects non-json extension", func(t *testing.T) {
		t.Parallel()
		path := writeTempConfig(t, "defaults.yaml", `{}`)
		_, err := LoadDetectionParams(path)
		assert.Error(t, err)
	})

	t.Run("rejects out-of-domain values", func(t *testing.T) {
		t.Parallel()
		path := writeTempConfig(t, "bad.json", `{"vv_threshold": 3}`)
		_, err := LoadDetectionParams(path)
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		_, err := LoadDetectionParams(filepath.Join(t.TempDir(), "absent.json"))
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		params  DetectionParams
		wantErr bool
	}{
		{"empty is valid", DetectionParams{}, false},
		{"vv in domain", DetectionParams{VVThreshold: Float64(-17.5)}, false},
		{"vv below domain", DetectionParams{VVThreshold: Float64(-31)}, true},
		{"vv above domain", DetectionParams{VVThreshold: Float64(0.5)}, true},
		{"vh in domain", DetectionParams{VHThreshold: Float64(-35)}, false},
		{"vh below domain", DetectionParams{VHThreshold: Float64(-35.1)}, true},
		{"diff in domain", DetectionParams{VVVHDiff: Float64(10)}, false},
		{"diff negative", DetectionParams{VVVHDiff: Float64(-1)}, true},
		{"diff too large", DetectionParams{VVVHDiff: Float64(11)}, true},
		{"slope zero allowed", DetectionParams{SlopeMax: Float64(0)}, false},
		{"slope too steep", DetectionParams{SlopeMax: Float64(31)}, true},
		{"min area one", DetectionParams{MinAreaPixels: Int(1)}, false},
		{"min area zero", DetectionParams{MinAreaPixels: Int(0)}, true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.params.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMerge(t *testing.T) {
	t.Parallel()

	base := &DetectionParams{
		VHThreshold:   Float64(-20),
		MinAreaPixels: Int(100),
	}

	t.Run("override wins", func(t *testing.T) {
		t.Parallel()
		merged := base.Merge(&DetectionParams{VHThreshold: Float64(-25)})
		assert.Equal(t, -25.0, *merged.VHThreshold)
		assert.Equal(t, 100, *merged.MinAreaPixels)
	})

	t.Run("nil override is identity", func(t *testing.T) {
		t.Parallel()
		merged := base.Merge(nil)
		assert.Equal(t, -20.0, *merged.VHThreshold)
	})

	t.Run("absent stays absent", func(t *testing.T) {
		t.Parallel()
		merged := base.Merge(&DetectionParams{})
		assert.Nil(t, merged.VVVHDiff)
		assert.Nil(t, merged.TextureMax)
	})

	t.Run("does not mutate receiver", func(t *testing.T) {
		t.Parallel()
		_ = base.Merge(&DetectionParams{VHThreshold: Float64(-30)})
		assert.Equal(t, -20.0, *base.VHThreshold)
	})
}

func TestGetters(t *testing.T) {
	t.Parallel()

	empty := EmptyDetectionParams()
	assert.Equal(t, DefaultVHThresholdDB, empty.GetVHThreshold())
	assert.Equal(t, DefaultSlopeMaxDeg, empty.GetSlopeMax())
	assert.Equal(t, DefaultMinAreaPixels, empty.GetMinAreaPixels())

	set := &DetectionParams{
		VHThreshold:   Float64(-18),
		SlopeMax:      Float64(2),
		MinAreaPixels: Int(10),
	}
	assert.Equal(t, -18.0, set.GetVHThreshold())
	assert.Equal(t, 2.0, set.GetSlopeMax())
	assert.Equal(t, 10, set.GetMinAreaPixels())
}

func TestDefaultsTable(t *testing.T) {
	t.Parallel()

	d := EmptyDetectionParams().Defaults()
	assert.Equal(t, "auto (percentile gap)", d["vv_threshold"])
	assert.Equal(t, "disabled", d["vv_vh_diff"])
	assert.Equal(t, "disabled", d["texture_max"])
	assert.Equal(t, DefaultVHThresholdDB, d["vh_threshold"])

	set := &DetectionParams{VVVHDiff: Float64(2), TextureMax: Float64(3)}
	d = set.Defaults()
	assert.Equal(t, 2.0, d["vv_vh_diff"])
	assert.Equal(t, 3.0, d["texture_max"])
}

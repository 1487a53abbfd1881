package detector

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_MissingModel(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorContains(t, err, "model path is empty")

	_, err = New(Config{ModelPath: "/nonexistent/model.onnx"})
	assert.ErrorContains(t, err, "not found")
}

func TestDetect_NilImage(t *testing.T) {
	d := &Detector{cfg: DefaultConfig()}
	dets, elapsed, err := d.Detect(nil, 1)
	assert.ErrorContains(t, err, "input image is nil")
	assert.Nil(t, dets)
	assert.Zero(t, elapsed)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.InDelta(t, 0.5, cfg.ConfThreshold, 1e-9)
	assert.InDelta(t, 0.45, cfg.IoUThreshold, 1e-9)
	assert.Equal(t, 640, cfg.InputSize)
	assert.InDelta(t, 100.0, cfg.MaxMergeDist, 1e-9)
}

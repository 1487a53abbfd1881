// Package detector flags domain-specific symbols on rasterized drawing
// pages (dimension callouts, tolerance marks, GD&T symbols) with a
// pretrained ONNX object-detection model, and merges the hits with OCR
// text blocks by spatial proximity.
package detector

import (
	"errors"
	"fmt"
	"image"
	"os"
	"sync"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/dibuix-tech/dibuix/internal/doc"
)

// Class indices produced by the model, in training order.
var classKinds = []doc.Kind{doc.KindDimension, doc.KindTolerance, doc.KindSymbol}

// Config holds detector settings.
type Config struct {
	ModelPath     string  `mapstructure:"model_path" yaml:"model_path" json:"model_path"`
	LibraryPath   string  `mapstructure:"library_path" yaml:"library_path" json:"library_path"`
	ConfThreshold float64 `mapstructure:"conf_threshold" yaml:"conf_threshold" json:"conf_threshold"`
	IoUThreshold  float64 `mapstructure:"iou_threshold" yaml:"iou_threshold" json:"iou_threshold"`
	InputSize     int     `mapstructure:"input_size" yaml:"input_size" json:"input_size"`
	NumThreads    int     `mapstructure:"num_threads" yaml:"num_threads" json:"num_threads"`
	MaxMergeDist  float64 `mapstructure:"max_merge_distance" yaml:"max_merge_distance" json:"max_merge_distance"`
}

// DefaultConfig returns detector defaults matching the trained model.
func DefaultConfig() Config {
	return Config{
		ConfThreshold: 0.5,
		IoUThreshold:  0.45,
		InputSize:     640,
		MaxMergeDist:  100,
	}
}

// Detection is one raw model hit in page pixel coordinates.
type Detection struct {
	Kind       doc.Kind `json:"kind"`
	Confidence float64  `json:"confidence"`
	Box        doc.Box  `json:"box"`
	Page       int      `json:"page"`
}

// Detector wraps an ONNX session for the technical-element model.
type Detector struct {
	cfg     Config
	mu      sync.RWMutex
	session *ort.DynamicAdvancedSession
}

// New loads the model and creates the inference session.
func New(cfg Config) (*Detector, error) {
	if cfg.ModelPath == "" {
		return nil, errors.New("detector model path is empty")
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("detector model not found: %s", cfg.ModelPath)
	}
	if cfg.ConfThreshold <= 0 {
		cfg.ConfThreshold = DefaultConfig().ConfThreshold
	}
	if cfg.IoUThreshold <= 0 {
		cfg.IoUThreshold = DefaultConfig().IoUThreshold
	}
	if cfg.InputSize <= 0 {
		cfg.InputSize = DefaultConfig().InputSize
	}

	if err := setupEnvironment(cfg.LibraryPath); err != nil {
		return nil, err
	}
	session, err := createSession(cfg)
	if err != nil {
		return nil, err
	}
	return &Detector{cfg: cfg, session: session}, nil
}

// Config returns the detector configuration.
func (d *Detector) Config() Config { return d.cfg }

// Close releases the inference session.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.session != nil {
		if err := d.session.Destroy(); err != nil {
			return err
		}
		d.session = nil
	}
	return nil
}

// Detect runs the model on one page image and returns thresholded,
// NMS-filtered detections in original image coordinates.
func (d *Detector) Detect(img image.Image, page int) ([]Detection, time.Duration, error) {
	if img == nil {
		return nil, 0, errors.New("input image is nil")
	}
	start := time.Now()

	bounds := img.Bounds()
	data, sx, sy := preprocess(img, d.cfg.InputSize)

	out, shape, err := d.run(data)
	if err != nil {
		return nil, 0, err
	}

	dets := decodeOutput(out, shape, d.cfg.ConfThreshold)
	for i := range dets {
		dets[i].Page = page
		dets[i].Box = doc.Box{
			X1: dets[i].Box.X1 * sx,
			Y1: dets[i].Box.Y1 * sy,
			X2: dets[i].Box.X2 * sx,
			Y2: dets[i].Box.Y2 * sy,
		}.Clamp(float64(bounds.Dx()), float64(bounds.Dy()))
	}
	dets = NonMaxSuppression(dets, d.cfg.IoUThreshold)

	return dets, time.Since(start), nil
}

// run executes the session on a prepared NCHW tensor.
func (d *Detector) run(data []float32) ([]float32, []int64, error) {
	d.mu.RLock()
	session := d.session
	d.mu.RUnlock()
	if session == nil {
		return nil, nil, errors.New("detector session is nil")
	}

	n := d.cfg.InputSize
	inputTensor, err := ort.NewTensor(ort.NewShape(1, 3, int64(n), int64(n)), data)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer func() {
		if err := inputTensor.Destroy(); err != nil {
			fmt.Fprintf(os.Stderr, "Error destroying input tensor: %v\n", err)
		}
	}()

	outputs := []ort.Value{nil}
	if err := session.Run([]ort.Value{inputTensor}, outputs); err != nil {
		return nil, nil, fmt.Errorf("inference failed: %w", err)
	}
	outputTensor := outputs[0]
	defer func() {
		if err := outputTensor.Destroy(); err != nil {
			fmt.Fprintf(os.Stderr, "Error destroying output tensor: %v\n", err)
		}
	}()

	floatTensor, ok := outputTensor.(*ort.Tensor[float32])
	if !ok {
		return nil, nil, fmt.Errorf("expected float32 tensor, got %T", outputTensor)
	}
	// Copy out before the tensor is destroyed.
	src := floatTensor.GetData()
	out := make([]float32, len(src))
	copy(out, src)
	return out, outputTensor.GetShape(), nil
}

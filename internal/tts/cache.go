// Package tts owns the per-device model services that wrap the XTTS
// inference engine. One service exists per device key; the loaded model it
// fronts lives for the rest of the process.
package tts

import (
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/voicemirror/api/internal/client"
)

// Engine is the synthesis capability behind a model service.
type Engine interface {
	LoadModel(ctx context.Context, device string) error
	Synthesize(ctx context.Context, req client.SynthesizeRequest) error
}

// ModelService is the handle for one device's loaded model. A service is
// cheap to construct; the expensive load happens once, on first use.
type ModelService struct {
	device string
	engine Engine

	loadMu sync.Mutex
	loaded atomic.Bool
}

// Device returns the normalized device key this service is bound to.
func (s *ModelService) Device() string {
	return s.device
}

// Loaded is a non-blocking probe; it never triggers a load.
func (s *ModelService) Loaded() bool {
	return s.loaded.Load()
}

// Load initializes the underlying model if it is not already resident.
// Concurrent callers serialize on the load mutex and only the first one
// pays the cost. A failed load is not cached: the next call retries.
func (s *ModelService) Load(ctx context.Context) error {
	if s.loaded.Load() {
		return nil
	}

	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	if s.loaded.Load() {
		return nil
	}

	if err := s.engine.LoadModel(ctx, s.device); err != nil {
		return fmt.Errorf("load model on %s: %w", s.device, err)
	}
	s.loaded.Store(true)
	return nil
}

// Synthesize produces audio with this device's model, loading it first if
// needed. The loaded model is assumed safe for concurrent synthesis calls.
func (s *ModelService) Synthesize(ctx context.Context, req client.SynthesizeRequest) error {
	if err := s.Load(ctx); err != nil {
		return err
	}
	req.Device = s.device
	return s.engine.Synthesize(ctx, req)
}

// ServiceCache hands out one ModelService per device key for the process
// lifetime. Keys are case-normalized so "CPU" and "cpu" share an instance.
type ServiceCache struct {
	engine        Engine
	defaultDevice string

	mu       sync.Mutex
	services map[string]*ModelService
}

// NewServiceCache creates a cache over the given engine. defaultDevice is
// used when a job does not name one; pass "" to probe the host.
func NewServiceCache(engine Engine, defaultDevice string) *ServiceCache {
	if defaultDevice == "" {
		defaultDevice = DetectDevice()
	}
	return &ServiceCache{
		engine:        engine,
		defaultDevice: strings.ToLower(strings.TrimSpace(defaultDevice)),
		services:      make(map[string]*ModelService),
	}
}

// DefaultDevice returns the device used when a submission names none.
func (c *ServiceCache) DefaultDevice() string {
	return c.defaultDevice
}

// Get returns the service for a device key, constructing it on first
// demand. Construction never loads the model.
func (c *ServiceCache) Get(device string) *ModelService {
	key := c.normalize(device)

	c.mu.Lock()
	defer c.mu.Unlock()

	svc, ok := c.services[key]
	if !ok {
		svc = &ModelService{device: key, engine: c.engine}
		c.services[key] = svc
	}
	return svc
}

// Warm forces the model for a device into memory. Redundant and concurrent
// calls are safe; a load happens at most once per key.
func (c *ServiceCache) Warm(ctx context.Context, device string) error {
	return c.Get(device).Load(ctx)
}

// IsLoaded reports whether a device's model is resident, without loading
// it or constructing a service as a side effect.
func (c *ServiceCache) IsLoaded(device string) bool {
	key := c.normalize(device)

	c.mu.Lock()
	svc, ok := c.services[key]
	c.mu.Unlock()

	return ok && svc.Loaded()
}

// LoadedDevices lists device keys with a resident model, for diagnostics.
func (c *ServiceCache) LoadedDevices() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	devices := make([]string, 0, len(c.services))
	for key, svc := range c.services {
		if svc.Loaded() {
			devices = append(devices, key)
		}
	}
	sort.Strings(devices)
	return devices
}

func (c *ServiceCache) normalize(device string) string {
	key := strings.ToLower(strings.TrimSpace(device))
	if key == "" {
		key = c.defaultDevice
	}
	return key
}

// DetectDevice probes the host for an accelerator. nvidia-smi on PATH is
// taken as CUDA being usable by the engine sidecar.
func DetectDevice() string {
	if _, err := exec.LookPath("nvidia-smi"); err == nil {
		return "cuda"
	}
	return "cpu"
}

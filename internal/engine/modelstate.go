package engine

import (
	"sync"

	"easel/internal/transport"
)

// modelState tracks what the server currently has loaded. Push events keep it
// current; the option catalog corrects it whenever a fresh copy arrives. The
// orchestrator's blocking model wait polls it.
type modelState struct {
	mu        sync.Mutex
	current   string
	loading   bool
	loadingAs string
	upscaler  bool
}

func (m *modelState) CurrentModel() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *modelState) Loading() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loading
}

func (m *modelState) UpscalerLoaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upscaler
}

func (m *modelState) beginLoading(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loading = true
	m.loadingAs = name
}

func (m *modelState) loaded(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = name
	m.loading = false
	m.loadingAs = ""
}

func (m *modelState) unloaded() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = ""
	m.loading = false
	m.loadingAs = ""
}

func (m *modelState) setUpscaler(loaded bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upscaler = loaded
}

// applyOptions reconciles against the authoritative catalog. A load in flight
// is left alone so the wait path cannot observe a stale "done".
func (m *modelState) applyOptions(options transport.Options) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loading {
		return
	}
	m.current = options.CurrentModel
}

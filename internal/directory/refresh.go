// ABOUTME: Process-wide refresh signal with mount/unmount lifecycle
// ABOUTME: Replaces the ad hoc mutable global with explicit install/uninstall

package directory

import (
	"context"
	"sync"
	"time"
)

// defaultReloadTimeout bounds the background reload triggered by a refresh
// signal unless SetReloadTimeout configures otherwise.
const defaultReloadTimeout = 10 * time.Second

// hub is the single process-wide refresh registration. Exactly one
// Directory is expected to be mounted at a time; installing overwrites any
// previous handler rather than stacking.
var hub struct {
	mu sync.Mutex
	fn func()
}

// Install registers fn as the refresh handler, replacing any existing one.
func Install(fn func()) {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	hub.fn = fn
}

// Uninstall removes the refresh handler. Safe when none is installed.
func Uninstall() {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	hub.fn = nil
}

// Refresh invokes the installed handler. With no handler mounted it is a
// harmless no-op; it never panics. Any component that mutates conversations
// from outside the directory calls this.
func Refresh() {
	hub.mu.Lock()
	fn := hub.fn
	hub.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Mount installs this directory's reload as the process refresh handler.
// Call Unmount when the owning UI surface goes away; each mount/unmount
// pair cleanly replaces rather than stacks registrations.
func (d *Directory) Mount() {
	Install(func() {
		d.mu.Lock()
		timeout := d.reloadTimeout
		d.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := d.Reload(ctx); err != nil {
			d.logger.Error("refresh-triggered reload failed", "error", err)
		}
	})
}

// Unmount removes the refresh handler installed by Mount.
func (d *Directory) Unmount() {
	Uninstall()
}

// Package homehub is an in-memory stand-in for the hub's display state so
// the voice pipeline can run on its own.
package homehub

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/user/homehub-voice/internal/command"
)

// Hub implements the date, view and refresh collaborators.
type Hub struct {
	date      time.Time
	view      command.View
	refreshes uint64
	onChange  []func()
	mutex     sync.RWMutex
}

func New(now time.Time) *Hub {
	return &Hub{
		date: now,
		view: command.ViewCalendar,
	}
}

// OnChange registers fn to run after any state change.
func (h *Hub) OnChange(fn func()) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.onChange = append(h.onChange, fn)
}

func (h *Hub) changed() {
	h.mutex.RLock()
	hooks := append([]func(){}, h.onChange...)
	h.mutex.RUnlock()
	for _, fn := range hooks {
		fn()
	}
}

func (h *Hub) Date() *DateState { return &DateState{hub: h} }
func (h *Hub) View() *ViewState { return &ViewState{hub: h} }

func (h *Hub) Refresh() {
	h.mutex.Lock()
	h.refreshes++
	n := h.refreshes
	h.mutex.Unlock()

	log.Debug().Uint64("refreshes", n).Msg("Hub refresh requested")
	h.changed()
}

// Refreshes returns how many times Refresh has been called.
func (h *Hub) Refreshes() uint64 {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.refreshes
}

type DateState struct{ hub *Hub }

func (d *DateState) Get() time.Time {
	d.hub.mutex.RLock()
	defer d.hub.mutex.RUnlock()
	return d.hub.date
}

func (d *DateState) Set(t time.Time) {
	d.hub.mutex.Lock()
	d.hub.date = t
	d.hub.mutex.Unlock()
	d.hub.changed()
}

type ViewState struct{ hub *Hub }

func (v *ViewState) Get() command.View {
	v.hub.mutex.RLock()
	defer v.hub.mutex.RUnlock()
	return v.hub.view
}

func (v *ViewState) Set(view command.View) {
	v.hub.mutex.Lock()
	v.hub.view = view
	v.hub.mutex.Unlock()
	v.hub.changed()
}

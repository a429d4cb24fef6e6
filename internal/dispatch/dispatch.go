// Package dispatch applies parsed commands to the home hub state.
package dispatch

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/user/homehub-voice/internal/command"
)

// DateState holds the date the hub is showing.
type DateState interface {
	Get() time.Time
	Set(time.Time)
}

// ViewState holds the active screen.
type ViewState interface {
	Get() command.View
	Set(command.View)
}

// Refresher reloads the hub's data.
type Refresher interface {
	Refresh()
}

// Dispatcher performs at most one collaborator call per command.
type Dispatcher struct {
	date      DateState
	view      ViewState
	refresher Refresher
	wakeWord  string
	now       func() time.Time
}

func New(date DateState, view ViewState, refresher Refresher, wakeWord string) (*Dispatcher, error) {
	if date == nil || view == nil || refresher == nil {
		return nil, fmt.Errorf("dispatcher needs date, view and refresh collaborators")
	}
	return &Dispatcher{
		date:      date,
		view:      view,
		refresher: refresher,
		wakeWord:  wakeWord,
		now:       time.Now,
	}, nil
}

// Dispatch applies cmd and reports whether any state was touched.
func (d *Dispatcher) Dispatch(cmd command.Command) (bool, error) {
	switch cmd.Kind {
	case command.None:
		return false, nil

	case command.Help:
		log.Info().Str("commands", command.Usage(d.wakeWord)).Msg("Available voice commands")
		return false, nil

	case command.Navigate:
		current := d.date.Get()
		next := cmd.Delta.Apply(current, d.now())
		d.date.Set(next)
		log.Info().
			Stringer("delta", cmd.Delta).
			Time("from", current).
			Time("to", next).
			Msg("Navigated date")
		return true, nil

	case command.Refresh:
		d.refresher.Refresh()
		log.Info().Msg("Triggered refresh")
		return true, nil

	case command.SwitchView:
		if _, err := command.ParseView(string(cmd.View)); err != nil {
			return false, fmt.Errorf("failed to switch view: %w", err)
		}
		d.view.Set(cmd.View)
		log.Info().Str("view", string(cmd.View)).Msg("Switched view")
		return true, nil

	default:
		return false, fmt.Errorf("unknown command kind %d", cmd.Kind)
	}
}

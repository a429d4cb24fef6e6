// Package command turns transcribed speech into home hub commands.
package command

import (
	"fmt"
	"time"
)

// Kind identifies what a Command does.
type Kind int

const (
	None Kind = iota
	Navigate
	Refresh
	SwitchView
	Help
)

func (k Kind) String() string {
	switch k {
	case Navigate:
		return "navigate"
	case Refresh:
		return "refresh"
	case SwitchView:
		return "switch_view"
	case Help:
		return "help"
	default:
		return "none"
	}
}

// Delta is a date movement requested by a Navigate command.
type Delta int

const (
	Today Delta = iota
	Tomorrow
	Yesterday
	NextWeek
	PreviousWeek
)

func (d Delta) String() string {
	switch d {
	case Tomorrow:
		return "tomorrow"
	case Yesterday:
		return "yesterday"
	case NextWeek:
		return "+7d"
	case PreviousWeek:
		return "-7d"
	default:
		return "today"
	}
}

// Apply returns the date d moves current to. Today ignores current and
// returns now.
func (d Delta) Apply(current, now time.Time) time.Time {
	switch d {
	case Tomorrow:
		return current.AddDate(0, 0, 1)
	case Yesterday:
		return current.AddDate(0, 0, -1)
	case NextWeek:
		return current.AddDate(0, 0, 7)
	case PreviousWeek:
		return current.AddDate(0, 0, -7)
	default:
		return now
	}
}

// View is a home hub screen.
type View string

const (
	ViewCalendar View = "calendar"
	ViewWeather  View = "weather"
	ViewNews     View = "news"
	ViewTasks    View = "tasks"
)

// Views lists every known view.
var Views = []View{ViewCalendar, ViewWeather, ViewNews, ViewTasks}

// ParseView validates s as a view name.
func ParseView(s string) (View, error) {
	for _, v := range Views {
		if string(v) == s {
			return v, nil
		}
	}
	return "", fmt.Errorf("unknown view %q", s)
}

// Command is an immutable parsed instruction. Delta is meaningful only for
// Navigate and View only for SwitchView.
type Command struct {
	Kind  Kind
	Delta Delta
	View  View
}

func (c Command) String() string {
	switch c.Kind {
	case Navigate:
		return fmt.Sprintf("navigate(%s)", c.Delta)
	case SwitchView:
		return fmt.Sprintf("switch_view(%s)", c.View)
	default:
		return c.Kind.String()
	}
}

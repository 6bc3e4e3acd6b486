package cache

import (
	"fmt"
	"time"
)

// Action is what a plan does with its key.
type Action uint8

const (
	Set    Action = iota + 1 // serve from cache, populate after a miss
	Remove                   // delete after the method succeeded
)

func (a Action) String() string {
	switch a {
	case Set:
		return "set"
	case Remove:
		return "remove"
	default:
		return fmt.Sprintf("action(%d)", uint8(a))
	}
}

func (a Action) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// Provider selects the backend a plan uses. The zero value means "use the
// setup default".
type Provider uint8

const (
	Memory      Provider = iota + 1 // in-process object store, values kept as-is
	Distributed                     // byte store, values go through the codec
)

func (p Provider) String() string {
	switch p {
	case 0:
		return "default"
	case Memory:
		return "memory"
	case Distributed:
		return "distributed"
	default:
		return fmt.Sprintf("provider(%d)", uint8(p))
	}
}

func (p Provider) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// Common TTLs beyond what package time offers.
const (
	Day     = 24 * time.Hour
	Week    = 7 * Day
	Month   = 31 * Day
	Year    = 365 * Day
	Decade  = 10 * Year
	Century = 10 * Decade
)

const (
	defaultTTL      = time.Minute
	defaultProvider = Memory
)

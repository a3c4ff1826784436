package voice

import (
	"fmt"
	"strings"
)

// Mode selects the active backend.
type Mode int32

const (
	ModeRealtime Mode = iota
	ModeBrowser
)

func (m Mode) String() string {
	switch m {
	case ModeRealtime:
		return "realtime"
	case ModeBrowser:
		return "browser"
	default:
		return fmt.Sprintf("Unknown(%d)", m)
	}
}

// ParseMode accepts "realtime" or "browser", case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "realtime":
		return ModeRealtime, nil
	case "browser":
		return ModeBrowser, nil
	default:
		return 0, fmt.Errorf("unknown voice mode %q (want realtime or browser)", s)
	}
}

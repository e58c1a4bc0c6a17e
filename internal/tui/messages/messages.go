package messages

import (
	"github.com/valentindosimont/ccem/internal/daemon"
)

// PassEventMsg wraps refresher events for the TUI
type PassEventMsg struct {
	Event daemon.Event
}

// PassTriggeredMsg is sent after a new pass was requested
type PassTriggeredMsg struct {
	PassID string
}

// FilesChangedMsg is sent when the monitor sees session logs change
type FilesChangedMsg struct{}

// ArchivedMsg is sent once a snapshot has been handed to the archive
type ArchivedMsg struct {
	PassID string
}

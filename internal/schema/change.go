package schema

import (
	"fmt"
	"time"
)

// ChangeAction is the verb recorded in the append-only change log.
type ChangeAction string

const (
	ActionTrack   ChangeAction = "track"
	ActionPull    ChangeAction = "pull"
	ActionCommit  ChangeAction = "commit"
	ActionRestore ChangeAction = "restore"
	ActionFollow  ChangeAction = "follow"
	ActionGhost   ChangeAction = "ghost"
	ActionDelete  ChangeAction = "delete"
	ActionUntrack ChangeAction = "untrack"
)

// Valid reports whether the action is one of the known verbs.
func (a ChangeAction) Valid() bool {
	switch a {
	case ActionTrack, ActionPull, ActionCommit, ActionRestore,
		ActionFollow, ActionGhost, ActionDelete, ActionUntrack:
		return true
	}
	return false
}

// ChangeEntry is one row of the append-only change log. The core only ever
// appends; the `changes` listing command is the sole consumer.
type ChangeEntry struct {
	ID        int64        `json:"id"`
	Timestamp time.Time    `json:"timestamp"`
	Alias     string       `json:"alias"`
	Action    ChangeAction `json:"action"`
	Outcome   string       `json:"outcome"`
}

// Validate checks the entry before it is appended.
func (c *ChangeEntry) Validate() error {
	if c.Alias == "" {
		return fmt.Errorf("alias is required")
	}
	if !c.Action.Valid() {
		return fmt.Errorf("unknown change action %q", c.Action)
	}
	if c.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}
	return nil
}

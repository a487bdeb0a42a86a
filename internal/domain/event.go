package domain

import "time"

// ChannelUnitEvents is the bus channel carrying UnitEvent payloads.
const ChannelUnitEvents = "ch:unit"

// UnitEventType names a unit lifecycle transition.
type UnitEventType string

const (
	EventUnitCreated     UnitEventType = "unit_created"
	EventUnitCreateFail  UnitEventType = "unit_create_failed"
	EventUnitRolledBack  UnitEventType = "unit_rolled_back"
	EventUnitClosed      UnitEventType = "unit_closed"
	EventUnitCloseFail   UnitEventType = "unit_close_failed"
	EventUnitLegFinished UnitEventType = "leg_finished"
)

// UnitEvent is published for every lifecycle transition.
type UnitEvent struct {
	ID        string        `json:"id"`
	Type      UnitEventType `json:"type"`
	Asset     string        `json:"asset"`
	Accounts  []string      `json:"accounts"`
	Message   string        `json:"message,omitempty"`
	Error     string        `json:"error,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

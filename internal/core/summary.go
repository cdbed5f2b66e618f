package core

import "time"

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string
	Amount Money
}

const (
	OpCreate  ChangeOp = "create"
	OpUpdate  ChangeOp = "update"
	OpDelete  ChangeOp = "delete"
	OpRefresh ChangeOp = "refresh"
)

type ChangeOp string

// Change describes a mutation the remote has already committed.
type Change struct {
	Kind     Kind      `json:"kind"`
	OwnerID  string    `json:"owner_id"`
	RecordID string    `json:"record_id,omitempty"`
	Op       ChangeOp  `json:"op"`
	At       time.Time `json:"at"`
}

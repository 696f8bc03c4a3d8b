// Package models contains domain types for friendgraph.
package models

import (
	"time"

	"github.com/google/uuid"
)

// RequestStatus is the lifecycle state of a friend request.
type RequestStatus string

const (
	RequestStatusSent     RequestStatus = "sent"
	RequestStatusAccepted RequestStatus = "accepted"
	RequestStatusRejected RequestStatus = "rejected"
)

// ValidRequestStatuses contains all valid status values.
var ValidRequestStatuses = []RequestStatus{RequestStatusSent, RequestStatusAccepted, RequestStatusRejected}

// ParseRequestStatus converts s into a RequestStatus, reporting whether it is known.
func ParseRequestStatus(s string) (RequestStatus, bool) {
	for _, status := range ValidRequestStatuses {
		if string(status) == s {
			return status, true
		}
	}
	return "", false
}

// IsLive reports whether a request in this status blocks new requests
// between the same two users.
func (s RequestStatus) IsLive() bool {
	return s == RequestStatusSent || s == RequestStatusAccepted
}

// IsTerminal reports whether no further transitions are allowed.
func (s RequestStatus) IsTerminal() bool {
	return s == RequestStatusAccepted || s == RequestStatusRejected
}

// FriendRequest is a directed edge from the sender to the recipient.
type FriendRequest struct {
	ID         uuid.UUID     `json:"id"`
	FromUserID uuid.UUID     `json:"from_user"`
	ToUserID   uuid.UUID     `json:"to_user"`
	Status     RequestStatus `json:"status"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// PairState is a snapshot of the live requests between two users, taken
// while creation for the pair is serialized. Either side may be nil.
type PairState struct {
	// Forward is the live request from the prospective sender to the recipient.
	Forward *FriendRequest
	// Reverse is the live request from the recipient back to the sender.
	Reverse *FriendRequest
}

// PendingRequest is an incoming request together with the user who sent it.
type PendingRequest struct {
	ID        uuid.UUID `json:"id"`
	User      *User     `json:"user"`
	CreatedAt time.Time `json:"created_at"`
}

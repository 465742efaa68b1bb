// Package util holds small helpers shared across agentrelay packages.
package util

import "github.com/google/uuid"

// NewID returns a random unique identifier used for session ids.
func NewID() string { return uuid.NewString() }

package model

import (
	"strings"

	"github.com/google/uuid"
)

func newID(prefix string) string {
	return prefix + "-" + strings.ToUpper(uuid.NewString()[:8])
}

// NewMissionID returns a fresh mission identifier.
func NewMissionID() string { return newID("MSN") }

// NewDroneID returns a fresh drone identifier.
func NewDroneID() string { return newID("DRN") }

// NewBaseID returns a fresh base identifier.
func NewBaseID() string { return newID("BASE") }

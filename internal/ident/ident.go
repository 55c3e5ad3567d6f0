package ident

import "github.com/google/uuid"

// Generator creates opaque unique identifiers.
type Generator interface {
	New() string
}

// UUID generates random (v4) UUID strings.
type UUID struct{}

func (UUID) New() string {
	return uuid.NewString()
}

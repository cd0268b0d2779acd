// Package testutil holds loggers and mocks shared by package tests.
package testutil

import (
	"testing"

	"github.com/rs/zerolog"
)

// NewTestLogger returns a logger that writes through t.Log, so output is
// only shown for failing or verbose tests.
func NewTestLogger(t testing.TB) zerolog.Logger {
	return zerolog.New(zerolog.NewTestWriter(t)).With().Timestamp().Logger()
}

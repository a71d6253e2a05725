package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSetsGlobals(t *testing.T) {
	prev := SetServiceName("scalper-test")
	defer SetServiceName(prev)

	l, err := New(Config{Level: "debug", Development: true})
	require.NoError(t, err)
	require.NotNil(t, l)
	assert.Same(t, l, InfoLogger)
	assert.Same(t, l, FatalLogger)

	assert.NotPanics(t, func() { Info("hello %s", "world") })
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	assert.Error(t, err)
}

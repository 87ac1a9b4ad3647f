package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetDebug(t *testing.T) {
	t.Cleanup(func() { SetDebug(false) })

	assert.False(t, DebugEnabled())
	SetDebug(true)
	assert.True(t, DebugEnabled())
	Debug("visible at debug level: %d", 1)
	SetDebug(false)
	assert.False(t, DebugEnabled())
}

package http

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewServerAppliesTimeouts(t *testing.T) {
	s := NewServer(nil, WithTimeouts(3*time.Second, 4*time.Second, 5*time.Second))

	assert.Equal(t, 3*time.Second, s.Echo().Server.ReadTimeout)
	assert.Equal(t, 4*time.Second, s.Echo().Server.WriteTimeout)
	assert.Equal(t, 5*time.Second, s.config.ShutdownTimeout)
}

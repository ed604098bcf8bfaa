package mountcfg

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRefusesRoot(t *testing.T) {
	_, err := New(Options{
		Endpoint:    Endpoint{User: "alice", Host: "example.com", RemoteRoot: "/srv"},
		GeteuidFunc: func() int { return 0 },
	})
	assert.ErrorIs(t, err, ErrRootNotPermitted)
}

func TestHasPort(t *testing.T) {
	assert.True(t, hasPort("example.com:22"))
	assert.False(t, hasPort("example.com"))
	assert.False(t, hasPort("::1"))
	assert.True(t, hasPort("[::1]:22"))
}

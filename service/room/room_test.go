package room

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateRoomIDOrderIndependent(t *testing.T) {
	assert.Equal(t, GenerateRoomID("u1", "u2"), GenerateRoomID("u2", "u1"))
}

func TestGenerateRoomIDDeterministic(t *testing.T) {
	first := GenerateRoomID("alice", "bob")
	assert.Equal(t, first, GenerateRoomID("alice", "bob"))
	assert.Len(t, first, 32)
}

func TestGenerateRoomIDDistinctPairs(t *testing.T) {
	assert.NotEqual(t, GenerateRoomID("u1", "u2"), GenerateRoomID("u1", "u3"))
}

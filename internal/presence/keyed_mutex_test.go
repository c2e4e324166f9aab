package presence

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestKeyedMutexForgetsReleasedKeys(t *testing.T) {
	k := newKeyedMutex()
	a, b := uuid.New(), uuid.New()

	unlockA := k.Lock(a)
	unlockB := k.Lock(b)
	assert.Equal(t, 2, k.size())

	unlockA()
	assert.Equal(t, 1, k.size())
	unlockB()
	assert.Equal(t, 0, k.size())
}

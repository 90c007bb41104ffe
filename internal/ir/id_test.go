package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildID_RoundTrip(t *testing.T) {
	id := BuildID(APIClassic, ClassSemaphores, 2, 17)

	assert.Equal(t, APIClassic, id.API())
	assert.Equal(t, ClassSemaphores, id.Class())
	assert.Equal(t, uint32(2), id.Node())
	assert.Equal(t, uint32(17), id.Index())
	assert.True(t, id.IsLocal(2))
	assert.False(t, id.IsLocal(1))
}

func TestBuildID_Layout(t *testing.T) {
	// class 3, api 2, node 1, index 1
	id := BuildID(APIClassic, ClassSemaphores, 1, 1)
	assert.Equal(t, ObjectID(0x1A010001), id)
	assert.Equal(t, "0x1a010001", id.String())
}

func TestBuildID_MasksOverflow(t *testing.T) {
	id := BuildID(APIClassic, ClassTasks, MaximumNodes+1, MaximumIndex+1)
	assert.Equal(t, uint32(0), id.Node())
	assert.Equal(t, uint32(0), id.Index())
}

func TestPriority_Ordering(t *testing.T) {
	assert.True(t, Priority(3).MoreUrgent(5))
	assert.False(t, Priority(5).MoreUrgent(5))
	assert.Equal(t, Priority(3), Highest(5, 3))
	assert.Equal(t, Priority(3), Highest(3, 5))
}

func TestOption_Blocking(t *testing.T) {
	assert.True(t, Wait.Blocking())
	assert.False(t, NoWait.Blocking())
}

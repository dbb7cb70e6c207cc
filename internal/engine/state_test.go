package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateMachine_Lifecycle(t *testing.T) {
	m := NewStateMachine()
	assert.Equal(t, StateIdle, m.Current())

	require.NoError(t, m.Begin())
	assert.Equal(t, StateThinking, m.Current())
	assert.ErrorIs(t, m.Begin(), ErrBusy)

	require.NoError(t, m.Transition(StateActing))
	m.Finish(false)
	assert.Equal(t, StateIdle, m.Current())
}

func TestStateMachine_ErrorRecovers(t *testing.T) {
	m := NewStateMachine()
	require.NoError(t, m.Begin())
	m.Finish(true)
	assert.Equal(t, StateError, m.Current())

	require.NoError(t, m.Begin())
	assert.Equal(t, StateThinking, m.Current())
}

func TestStateMachine_Shutdown(t *testing.T) {
	m := NewStateMachine()
	require.NoError(t, m.Transition(StateShuttingDown))
	require.NoError(t, m.Transition(StateShutdown))
	assert.True(t, m.ShuttingDown())
	assert.Error(t, m.Begin())

	m.Finish(true)
	assert.Equal(t, StateShutdown, m.Current())
	assert.Error(t, m.Transition(StateIdle))
}

func TestIsDestructive(t *testing.T) {
	assert.True(t, IsDestructive(ActionCreateFile, "writeFile"))
	assert.True(t, IsDestructive(ActionRunCommand, "executeCommand"))
	assert.True(t, IsDestructive(ActionInstallPackage, "installPackage"))
	assert.False(t, IsDestructive(ActionReadFile, "readFile"))
	assert.False(t, IsDestructive(ActionListDirectory, "listDirectory"))
}

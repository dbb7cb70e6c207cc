package project

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChamsBouzaiene/agentcli/internal/engine"
)

func TestRules(t *testing.T) {
	root := t.TempDir()

	rules, err := LoadRules(root)
	require.NoError(t, err)
	assert.Empty(t, rules)

	require.NoError(t, SaveRules(root, "  Use tabs.\nNever touch vendor/.  \n"))
	rules, err = LoadRules(root)
	require.NoError(t, err)
	assert.Equal(t, "Use tabs.\nNever touch vendor/.", rules)

	require.NoError(t, os.WriteFile(RulesPath(root), []byte(strings.Repeat("x", MaxRulesSize+1)), 0644))
	_, err = LoadRules(root)
	assert.True(t, engine.IsKind(err, engine.KindTooLarge))
}

package main

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataplugoy/tasenor-bookkeeper-sub002/internal/common"
)

func TestRenderError(t *testing.T) {
	plain := errors.New("disk is full")
	assert.Contains(t, renderError(plain), "disk is full")

	wrapped := common.NewUserError("import failed", errors.New("no rule matches segment abc"))
	lines := strings.Split(renderError(wrapped), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "import failed")
	assert.NotContains(t, lines[0], "no rule matches")
	assert.Contains(t, lines[1], "no rule matches segment abc")

	bare := common.NewUserError("nothing to resume", nil)
	assert.NotContains(t, renderError(bare), "\n")
}

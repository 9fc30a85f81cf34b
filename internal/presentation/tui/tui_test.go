package tui_test

import (
	"bytes"
	"testing"

	"github.com/aretw0/deckhand/internal/presentation/tui"
	"github.com/aretw0/deckhand/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlainOutputWhenRedirected(t *testing.T) {
	var buf bytes.Buffer
	assert.False(t, tui.IsTerminal(&buf))

	render := tui.NewRenderer(&buf)
	out, err := render("# Title\n")
	require.NoError(t, err)
	assert.Equal(t, "# Title\n", out)

	p := tui.NewPalette(&buf)
	assert.Equal(t, "SUCCESS", p.Status(domain.StatusSuccess))
	assert.Equal(t, "r1", p.Key("r1"))
	assert.Equal(t, "x", p.Muted("x"))
}

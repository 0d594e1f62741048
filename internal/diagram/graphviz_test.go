package diagram

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderImage_PNG(t *testing.T) {
	model, err := Build(parse(t, branchDoc), nil)
	require.NoError(t, err)

	png, err := RenderImage(context.Background(), model, FormatPNG)
	require.NoError(t, err)
	require.Greater(t, len(png), 8)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, png[:4])
}

func TestRenderImage_SVG(t *testing.T) {
	model, err := Build(parse(t, branchDoc), nil)
	require.NoError(t, err)

	svg, err := RenderImage(context.Background(), model, FormatSVG)
	require.NoError(t, err)
	assert.Contains(t, string(svg), "<svg")
	assert.Contains(t, string(svg), "check")
}

func TestRenderImage_DOT(t *testing.T) {
	model, err := Build(parse(t, branchDoc), nil)
	require.NoError(t, err)

	dot, err := RenderImage(context.Background(), model, FormatDOT)
	require.NoError(t, err)
	assert.Contains(t, string(dot), "digraph")
	assert.Contains(t, string(dot), "begin -> check")
}

func TestRenderImage_UnknownFormat(t *testing.T) {
	model, err := Build(parse(t, branchDoc), nil)
	require.NoError(t, err)

	_, err = RenderImage(context.Background(), model, "gif")
	assert.Error(t, err)
}

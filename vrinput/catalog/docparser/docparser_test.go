package docparser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmotion/vrio/vrinput/catalog"
)

const aliasDoc = `---
title: Device Aliases
---

# Device Aliases

| Device              | Style            |
| ------------------- | ---------------- |
| Valve Index         | Vive             |
| Quest Touch (Right) | OculusTouchRight |
| Logitech F310       | xbox             |
`

func TestParse(t *testing.T) {
	doc, err := New().Parse([]byte(aliasDoc))
	require.NoError(t, err)

	assert.Equal(t, "Device Aliases", doc.Title)
	require.Len(t, doc.Aliases, 3)
	assert.Equal(t, Alias{Match: "Valve Index", Style: catalog.StyleVive}, doc.Aliases[0])
	assert.Equal(t, Alias{Match: "Quest Touch (Right)", Style: catalog.StyleOculusTouchRight}, doc.Aliases[1])
	assert.Equal(t, Alias{Match: "Logitech F310", Style: catalog.StyleXbox}, doc.Aliases[2])
}

func TestParseNoTable(t *testing.T) {
	doc, err := New().Parse([]byte("# Nothing here\n\nJust prose.\n"))
	require.NoError(t, err)
	assert.Empty(t, doc.Aliases)
	assert.Empty(t, doc.Title)
}

func TestApply(t *testing.T) {
	c := catalog.Default()
	require.NoError(t, New().Apply(c, []byte(aliasDoc)))

	schema, ok := c.Resolve("Valve Index Controller (left)")
	require.True(t, ok)
	assert.Equal(t, catalog.StyleVive, schema.Style)

	schema, ok = c.Resolve("Logitech F310 Gamepad")
	require.True(t, ok)
	assert.Equal(t, catalog.StyleXbox, schema.Style)

	// Re-applying the same document is a no-op, not an error.
	require.NoError(t, New().Apply(c, []byte(aliasDoc)))
}

func TestApplyUnknownStyle(t *testing.T) {
	doc := `
| Device | Style     |
| ------ | --------- |
| Thing  | NoSuchPad |
`
	err := New().Apply(catalog.Default(), []byte(doc))
	assert.Error(t, err)
}

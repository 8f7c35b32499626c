package venues

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const directoryYAML = `
venues:
  - id: dive
    name: The Dive Bar
    url: https://dive.example
    area: downtown
    lat: 40.71
    lng: -74.0
  - id: roof
    name: Rooftop Lounge
    url: https://roof.example
    area: midtown
  - id: ""
    name: no id
    url: https://nope.example
  - id: dive
    name: duplicate id
    url: https://dupe.example
  - id: nourl
    name: missing url
exclusions:
  - roof
`

func TestParseDirectory(t *testing.T) {
	t.Parallel()

	dir, err := Parse([]byte(directoryYAML))
	require.NoError(t, err)

	// Invalid and duplicate entries dropped.
	require.Len(t, dir.Venues, 2)
	assert.Equal(t, "dive", dir.Venues[0].ID)
	assert.Equal(t, "The Dive Bar", dir.Venues[0].Name)
	assert.Equal(t, 40.71, dir.Venues[0].Lat)
	assert.Equal(t, "roof", dir.Venues[1].ID)
}

func TestParseInvalidYAML(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte("venues: [unclosed"))
	assert.Error(t, err)
}

func TestFilterArea(t *testing.T) {
	t.Parallel()

	dir, err := Parse([]byte(directoryYAML))
	require.NoError(t, err)

	all := dir.FilterArea("")
	assert.Len(t, all, 2)

	downtown := dir.FilterArea("Downtown")
	require.Len(t, downtown, 1)
	assert.Equal(t, "dive", downtown[0].ID)

	assert.Empty(t, dir.FilterArea("uptown"))
}

func TestExclusions(t *testing.T) {
	t.Parallel()

	dir, err := Parse([]byte(directoryYAML))
	require.NoError(t, err)

	assert.True(t, dir.Excluded("roof"))
	assert.False(t, dir.Excluded("dive"))

	set := dir.ExclusionSet()
	assert.True(t, set["roof"])
	assert.False(t, set["dive"])
}

func TestLoadSaveRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "venues.yaml")
	require.NoError(t, os.WriteFile(path, []byte(directoryYAML), 0o644))

	dir, err := Load(path)
	require.NoError(t, err)
	require.Len(t, dir.Venues, 2)

	out := filepath.Join(t.TempDir(), "saved.yaml")
	require.NoError(t, dir.Save(out))

	again, err := Load(out)
	require.NoError(t, err)
	assert.Equal(t, dir.Venues, again.Venues)
	assert.Equal(t, dir.Exclusions, again.Exclusions)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

package architecture_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lhermann/mnist-ml-project/architecture"
)

func TestPublicCatalog(t *testing.T) {
	names := architecture.Names()
	require.Len(t, names, 9)
	assert.Equal(t, architecture.Default, names[0])

	for _, name := range names {
		spec, err := architecture.Build(name)
		require.NoError(t, err, name)

		infos, err := architecture.InferShapes(spec.WithOutput())
		require.NoError(t, err, name)
		assert.Equal(t, architecture.Shape{10}, infos[len(infos)-1].Output, name)
	}

	_, err := architecture.Build("nope")
	assert.ErrorIs(t, err, architecture.ErrUnknownArchitecture)
}

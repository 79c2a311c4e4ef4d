package main

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lhermann/mnist-ml-project/internal/dataset"
)

func TestVersion(t *testing.T) {
	var out, errOut bytes.Buffer
	assert.Equal(t, 0, run([]string{"version"}, &out, &errOut))
	assert.Equal(t, "digits "+version+"\n", out.String())
}

func TestArchitectures(t *testing.T) {
	var out, errOut bytes.Buffer
	require.Equal(t, 0, run([]string{"architectures"}, &out, &errOut))
	for _, name := range []string{"tutorial", "direct", "complex", "simple", "huge", "large", "modest", "small", "tiny"} {
		assert.Contains(t, out.String(), name)
	}
	assert.Contains(t, out.String(), "(default)")
}

func TestSummary(t *testing.T) {
	var out, errOut bytes.Buffer
	require.Equal(t, 0, run([]string{"-arch", "direct", "summary"}, &out, &errOut))
	assert.Contains(t, out.String(), "conv2d_1 (Conv2D)")
	assert.Contains(t, out.String(), "Total params: 5338")
}

func TestUnknownArchitecture(t *testing.T) {
	var out, errOut bytes.Buffer
	assert.Equal(t, 1, run([]string{"-arch", "gigantic", "summary"}, &out, &errOut))
	assert.Contains(t, errOut.String(), "unknown architecture")
}

func TestUnknownCommand(t *testing.T) {
	var out, errOut bytes.Buffer
	assert.Equal(t, 2, run([]string{"serve"}, &out, &errOut))
	assert.Contains(t, errOut.String(), "Usage: digits")
}

func TestTrainSynthetic(t *testing.T) {
	var out, errOut bytes.Buffer
	code := run([]string{
		"-synthetic", "-arch", "modest",
		"-epochs", "1", "-batch", "16", "-train-size", "32", "-predict-size", "20",
		"train",
	}, &out, &errOut)
	require.Equal(t, 0, code, errOut.String())
	assert.Contains(t, out.String(), "accuracy:")
	assert.Contains(t, out.String(), "(20 examples)")
	assert.NotContains(t, errOut.String(), "tensors still alive")
}

func TestTrainProgressAndSeedZero(t *testing.T) {
	var out, errOut bytes.Buffer
	code := run([]string{
		"-synthetic", "-arch", "tiny", "-seed", "0", "-lr", "0.01",
		"-epochs", "1", "-batch", "8", "-train-size", "16", "-predict-size", "10",
		"-progress-every", "1",
		"train",
	}, &out, &errOut)
	require.Equal(t, 0, code, errOut.String())
	assert.Contains(t, out.String(), "  epoch 1 batch 1 ")
	assert.Contains(t, out.String(), "  epoch 1 batch 2 ")
}

func TestTrainLimitsLoadedData(t *testing.T) {
	dir := t.TempDir()
	writeIDX(t, dir, 30)

	var out, errOut bytes.Buffer
	code := run([]string{
		"-data", dir, "-arch", "tiny", "-max-examples", "12",
		"-epochs", "1", "-batch", "8", "-train-size", "8", "-predict-size", "10",
		"train",
	}, &out, &errOut)
	require.Equal(t, 0, code, errOut.String())
	assert.Contains(t, errOut.String(), "train=12")
	assert.Contains(t, errOut.String(), "test=12")
}

func TestTrainCorruptData(t *testing.T) {
	dir := t.TempDir()
	var header bytes.Buffer
	require.NoError(t, binary.Write(&header, binary.BigEndian, [4]uint32{2051, 0xFFFFFFFF, 0xFFFFFFFF, 0xFFFFFFFF}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, dataset.TrainImagesFile), header.Bytes(), 0o600))

	var out, errOut bytes.Buffer
	assert.Equal(t, 1, run([]string{"-data", dir, "-arch", "tiny", "train"}, &out, &errOut))
	assert.Contains(t, errOut.String(), "size mismatch")
}

// writeIDX writes n images and labels per split into dir.
func writeIDX(t *testing.T, dir string, n int) {
	t.Helper()
	images := func() []byte {
		var buf bytes.Buffer
		require.NoError(t, binary.Write(&buf, binary.BigEndian, [4]uint32{2051, uint32(n), dataset.Height, dataset.Width}))
		buf.Write(make([]byte, n*dataset.ImageSize))
		return buf.Bytes()
	}
	labels := func() []byte {
		var buf bytes.Buffer
		require.NoError(t, binary.Write(&buf, binary.BigEndian, [2]uint32{2049, uint32(n)}))
		for i := 0; i < n; i++ {
			buf.WriteByte(byte(i % 10))
		}
		return buf.Bytes()
	}
	for name, data := range map[string][]byte{
		dataset.TrainImagesFile: images(),
		dataset.TrainLabelsFile: labels(),
		dataset.TestImagesFile:  images(),
		dataset.TestLabelsFile:  labels(),
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o600))
	}
}

func TestTrainMissingData(t *testing.T) {
	var out, errOut bytes.Buffer
	code := run([]string{"-data", t.TempDir(), "-arch", "tiny", "train"}, &out, &errOut)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut.String(), "-synthetic")
}

func TestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "digits.yaml")
	require.NoError(t, os.WriteFile(path, []byte("architecture: tiny\n"), 0o600))

	var out, errOut bytes.Buffer
	require.Equal(t, 0, run([]string{"-config", path, "summary"}, &out, &errOut))
	assert.Contains(t, out.String(), "maxpooling2d_2 (MaxPooling2D)")
}

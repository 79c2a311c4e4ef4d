package dataset

import (
	"bufio"
	"compress/gzip"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// IDX magic numbers.
const (
	magicImages = 2051 // 0x00000803
	magicLabels = 2049 // 0x00000801
)

// MaxExamples bounds the example count accepted from an IDX header.
const MaxExamples = 1 << 20

// Standard MNIST file names. Each may also be present with a .gz suffix.
const (
	TrainImagesFile = "train-images-idx3-ubyte"
	TrainLabelsFile = "train-labels-idx1-ubyte"
	TestImagesFile  = "t10k-images-idx3-ubyte"
	TestLabelsFile  = "t10k-labels-idx1-ubyte"
)

// LoadIDX reads the MNIST training and test sets from dir.
func LoadIDX(dir string) (train, test *Set, err error) {
	train, err = loadSet(dir, TrainImagesFile, TrainLabelsFile)
	if err != nil {
		return nil, nil, fmt.Errorf("training set: %w", err)
	}
	test, err = loadSet(dir, TestImagesFile, TestLabelsFile)
	if err != nil {
		return nil, nil, fmt.Errorf("test set: %w", err)
	}
	return train, test, nil
}

func loadSet(dir, imagesFile, labelsFile string) (*Set, error) {
	var pixels []byte
	err := withFile(filepath.Join(dir, imagesFile), func(r io.Reader) error {
		var err error
		pixels, _, _, err = ReadImages(r)
		return err
	})
	if err != nil {
		return nil, err
	}
	var labels []byte
	err = withFile(filepath.Join(dir, labelsFile), func(r io.Reader) error {
		var err error
		labels, err = ReadLabels(r)
		return err
	})
	if err != nil {
		return nil, err
	}
	return NewSet(pixels, labels)
}

// withFile opens path, falling back to path+".gz", and passes fn a reader of
// the decompressed content.
func withFile(path string, fn func(io.Reader) error) error {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		f, err = os.Open(path + ".gz")
		if err == nil {
			path += ".gz"
		}
	}
	if err != nil {
		return err
	}
	defer f.Close()

	var r io.Reader = bufio.NewReader(f)
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(r)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	}
	if err := fn(r); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// ReadImages reads an IDX3 image file and returns the raw pixels of all
// images back to back, with the image dimensions. Only 28x28 images are
// accepted, at most MaxExamples of them.
//
//	magic number: 0x00000803 (2051)
//	number of images: 4 bytes
//	number of rows: 4 bytes
//	number of cols: 4 bytes
//	pixel data: unsigned bytes (0-255)
func ReadImages(r io.Reader) (pixels []byte, rows, cols int, err error) {
	var header [4]uint32
	if err := binary.Read(r, binary.BigEndian, &header); err != nil {
		return nil, 0, 0, fmt.Errorf("read header: %w", err)
	}
	if header[0] != magicImages {
		return nil, 0, 0, fmt.Errorf("%w: got %d, want %d", ErrInvalidMagic, header[0], magicImages)
	}
	if header[2] != Height || header[3] != Width {
		return nil, 0, 0, fmt.Errorf("%w: images are %dx%d, want %dx%d", ErrSizeMismatch, header[2], header[3], Height, Width)
	}
	if header[1] > MaxExamples {
		return nil, 0, 0, fmt.Errorf("%w: %d images, limit is %d", ErrSizeMismatch, header[1], MaxExamples)
	}

	n := int(header[1])
	pixels, err = readExactly(r, n*ImageSize)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("read %d images: %w", n, err)
	}
	return pixels, Height, Width, nil
}

// ReadLabels reads an IDX1 label file.
//
//	magic number: 0x00000801 (2049)
//	number of labels: 4 bytes
//	label data: unsigned bytes (0-9)
func ReadLabels(r io.Reader) ([]byte, error) {
	var header [2]uint32
	if err := binary.Read(r, binary.BigEndian, &header); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if header[0] != magicLabels {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInvalidMagic, header[0], magicLabels)
	}
	if header[1] > MaxExamples {
		return nil, fmt.Errorf("%w: %d labels, limit is %d", ErrSizeMismatch, header[1], MaxExamples)
	}

	labels, err := readExactly(r, int(header[1]))
	if err != nil {
		return nil, fmt.Errorf("read %d labels: %w", header[1], err)
	}
	return labels, nil
}

// readExactly reads n bytes, growing the buffer only as data arrives so a
// truncated file never causes the full allocation.
func readExactly(r io.Reader, n int) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, int64(n)))
	if err != nil {
		return nil, err
	}
	if len(data) != n {
		return nil, fmt.Errorf("%w: got %d of %d bytes", io.ErrUnexpectedEOF, len(data), n)
	}
	return data, nil
}

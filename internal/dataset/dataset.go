// Package dataset loads MNIST digits and serves them as pipeline batches.
package dataset

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"github.com/lhermann/mnist-ml-project/internal/architecture"
	"github.com/lhermann/mnist-ml-project/internal/parallel"
	"github.com/lhermann/mnist-ml-project/internal/pipeline"
)

// Image geometry.
const (
	Height    = architecture.ImageHeight
	Width     = architecture.ImageWidth
	ImageSize = Height * Width
)

// Dataset errors.
var (
	ErrInvalidMagic = errors.New("invalid IDX magic number")
	ErrSizeMismatch = errors.New("size mismatch")
	ErrEmpty        = errors.New("empty dataset")
)

// Set is a list of 28x28 grayscale images with their digit labels.
type Set struct {
	pixels []byte // ImageSize bytes per image
	labels []byte
}

// NewSet validates and wraps raw pixels and labels.
func NewSet(pixels, labels []byte) (*Set, error) {
	if len(labels) == 0 {
		return nil, ErrEmpty
	}
	if len(pixels) != len(labels)*ImageSize {
		return nil, fmt.Errorf("%w: %d pixel bytes for %d labels", ErrSizeMismatch, len(pixels), len(labels))
	}
	for i, l := range labels {
		if int(l) >= architecture.NumClasses {
			return nil, fmt.Errorf("%w: label %d at %d", ErrSizeMismatch, l, i)
		}
	}
	return &Set{pixels: pixels, labels: labels}, nil
}

// Len returns the number of examples.
func (s *Set) Len() int {
	return len(s.labels)
}

// Label returns the digit of example i.
func (s *Set) Label(i int) int {
	return int(s.labels[i])
}

// Limit returns a view of the first n examples, or s itself when n <= 0 or
// n >= Len.
func (s *Set) Limit(n int) *Set {
	if n <= 0 || n >= s.Len() {
		return s
	}
	return &Set{pixels: s.pixels[:n*ImageSize], labels: s.labels[:n]}
}

// Synthetic generates n deterministic digit-like patterns. Example i shows
// digit i%10 as a bright horizontal band whose position depends on the digit,
// with pixel noise drawn from seed.
func Synthetic(n int, seed int64) *Set {
	rng := rand.New(rand.NewSource(seed))
	pixels := make([]byte, n*ImageSize)
	labels := make([]byte, n)

	for i := 0; i < n; i++ {
		digit := i % architecture.NumClasses
		labels[i] = byte(digit)
		img := pixels[i*ImageSize : (i+1)*ImageSize]

		startRow := digit * 2
		for row := startRow; row < startRow+8 && row < Height; row++ {
			for col := 5; col < 23; col++ {
				img[row*Width+col] = 204
			}
		}
		for p := range img {
			if rng.Intn(16) == 0 {
				img[p] = byte(rng.Intn(64))
			}
		}
	}
	return &Set{pixels: pixels, labels: labels}
}

// TensorFactory creates engine tensors from host data.
type TensorFactory interface {
	FromSlice(data []float32, shape ...int) (pipeline.Tensor, error)
}

// Source serves batches from a training and a test set. Each split cycles
// through its examples in a shuffled order and reshuffles whenever it wraps.
type Source struct {
	factory TensorFactory
	train   *sampler
	test    *sampler
	workers parallel.Config
}

var _ pipeline.DataSource = (*Source)(nil)

// NewSource returns a source over train and test.
func NewSource(factory TensorFactory, train, test *Set, seed int64) (*Source, error) {
	if train == nil || train.Len() == 0 || test == nil || test.Len() == 0 {
		return nil, ErrEmpty
	}
	return &Source{
		factory: factory,
		train:   newSampler(train, seed),
		test:    newSampler(test, seed+1),
		workers: parallel.DefaultConfig(),
	}, nil
}

// NextTrainBatch returns n training examples as [n,784] pixels in [0,1] and
// [n,10] one-hot labels.
func (s *Source) NextTrainBatch(n int) (pipeline.Batch, error) {
	return s.batch(s.train, n)
}

// NextTestBatch returns n test examples.
func (s *Source) NextTestBatch(n int) (pipeline.Batch, error) {
	return s.batch(s.test, n)
}

func (s *Source) batch(sm *sampler, n int) (pipeline.Batch, error) {
	if n <= 0 {
		return pipeline.Batch{}, fmt.Errorf("%w: batch size %d", ErrSizeMismatch, n)
	}
	idx := sm.next(n)

	pixels := make([]float32, n*ImageSize)
	labels := make([]float32, n*architecture.NumClasses)
	parallel.For(n, s.workers, func(i int) {
		j := idx[i]
		src := sm.set.pixels[j*ImageSize : (j+1)*ImageSize]
		dst := pixels[i*ImageSize : (i+1)*ImageSize]
		for p, v := range src {
			dst[p] = float32(v) / 255
		}
		labels[i*architecture.NumClasses+sm.set.Label(j)] = 1
	})

	images, err := s.factory.FromSlice(pixels, n, ImageSize)
	if err != nil {
		return pipeline.Batch{}, err
	}
	oneHot, err := s.factory.FromSlice(labels, n, architecture.NumClasses)
	if err != nil {
		images.Release()
		return pipeline.Batch{}, err
	}
	return pipeline.Batch{Images: images, Labels: oneHot}, nil
}

type sampler struct {
	set *Set

	mu    sync.Mutex
	rng   *rand.Rand
	order []int
	pos   int
}

func newSampler(set *Set, seed int64) *sampler {
	rng := rand.New(rand.NewSource(seed))
	return &sampler{set: set, rng: rng, order: rng.Perm(set.Len())}
}

// next returns n example indices, wrapping around and reshuffling as needed.
func (s *sampler) next(n int) []int {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]int, n)
	for i := range out {
		if s.pos == len(s.order) {
			s.order = s.rng.Perm(len(s.order))
			s.pos = 0
		}
		out[i] = s.order[s.pos]
		s.pos++
	}
	return out
}

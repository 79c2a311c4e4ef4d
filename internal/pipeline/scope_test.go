package pipeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTidyReleasesOnError(t *testing.T) {
	e := &fakeEngine{}
	boom := errors.New("boom")

	err := Tidy(func(s *Scope) error {
		s.Track(e.tensor(nil, 0))
		s.Track(e.tensor(nil, 0))
		s.Track(nil)
		assert.Equal(t, 2, s.Len())
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, e.Live())
}

func TestScopeKeep(t *testing.T) {
	e := &fakeEngine{}
	var kept Tensor

	err := Tidy(func(s *Scope) error {
		s.Track(e.tensor(nil, 0))
		kept = s.Keep(s.Track(e.tensor(nil, 0)))
		assert.Equal(t, 1, s.Len())
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, e.Live())

	kept.Release()
	kept.Release()
	assert.Zero(t, e.Live())
}

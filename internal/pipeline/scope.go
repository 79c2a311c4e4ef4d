package pipeline

// Scope collects tensors created inside a block so they can be released
// together when the block ends, on success and on error alike.
type Scope struct {
	tensors []Tensor
}

// Track adds t to the scope and returns it.
func (s *Scope) Track(t Tensor) Tensor {
	if t != nil {
		s.tensors = append(s.tensors, t)
	}
	return t
}

// Keep removes t from the scope; the caller becomes responsible for it.
func (s *Scope) Keep(t Tensor) Tensor {
	for i, tracked := range s.tensors {
		if tracked == t {
			s.tensors = append(s.tensors[:i], s.tensors[i+1:]...)
			break
		}
	}
	return t
}

// Len returns the number of tracked tensors.
func (s *Scope) Len() int {
	return len(s.tensors)
}

// Release releases every tracked tensor, newest first.
func (s *Scope) Release() {
	for i := len(s.tensors) - 1; i >= 0; i-- {
		s.tensors[i].Release()
	}
	s.tensors = nil
}

// Tidy runs fn with a fresh scope and releases it afterwards.
func Tidy(fn func(s *Scope) error) error {
	s := &Scope{}
	defer s.Release()
	return fn(s)
}

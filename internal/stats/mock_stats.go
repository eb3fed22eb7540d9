package stats

import "github.com/stretchr/testify/mock"

type MockStats struct {
	mock.Mock
}

func (m *MockStats) Incr(name string) {
	m.Called(name)
}
func (m *MockStats) Decr(name string) {
	m.Called(name)
}

// NopStats discards all updates. Useful in tests that don't assert metrics.
type NopStats struct{}

func (NopStats) Incr(string) {}
func (NopStats) Decr(string) {}

package stats

import "github.com/stretchr/testify/mock"

type MockStatsUpdater struct {
	mock.Mock
}

func (m *MockStatsUpdater) Incr(name string) {
	m.Called(name)
}
func (m *MockStatsUpdater) Decr(name string) {
	m.Called(name)
}
func (m *MockStatsUpdater) RegisterMetric(name string) {
	m.Called(name)
}
func (m *MockStatsUpdater) Run() {
	m.Called()
}

// NopProvider discards all updates. It stands in for the real updater
// where metrics are not under test, since expvar maps can only be
// registered once per process.
type NopProvider struct{}

func (NopProvider) Incr(string)           {}
func (NopProvider) Decr(string)           {}
func (NopProvider) RegisterMetric(string) {}
func (NopProvider) Run()                  {}

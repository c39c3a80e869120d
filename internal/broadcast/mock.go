package broadcast

import "github.com/stretchr/testify/mock"

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(topic string, payload any) error {
	args := m.Called(topic, payload)
	return args.Error(0)
}
func (m *MockPublisher) Close() error {
	args := m.Called()
	return args.Error(0)
}

package push

import (
	"github.com/stretchr/testify/mock"

	"github.com/convoapp/convo/internal/types"
)

type MockTransport struct {
	mock.Mock
}

func (m *MockTransport) SendPush(reg types.PushRegistration, payload []byte) error {
	args := m.Called(reg, payload)
	return args.Error(0)
}

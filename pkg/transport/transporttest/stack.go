// Package transporttest provides a testify mock of transport.Stack.
package transporttest

import (
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/iotcon/iotcon-go/pkg/model"
	"github.com/iotcon/iotcon-go/pkg/transport"
	"github.com/iotcon/iotcon-go/pkg/wire"
)

// Stack is a mock transport.Stack.
type Stack struct {
	mock.Mock
}

var _ transport.Stack = (*Stack)(nil)

func (s *Stack) Start(cb transport.Callbacks) error {
	return s.Called(cb).Error(0)
}

func (s *Stack) CreateResource(uri, resType string, iface model.Interface, props model.Property) (transport.ResourceHandle, error) {
	args := s.Called(uri, resType, iface, props)
	return args.Get(0).(transport.ResourceHandle), args.Error(1)
}

func (s *Stack) DeleteResource(h transport.ResourceHandle) error {
	return s.Called(h).Error(0)
}

func (s *Stack) BindType(h transport.ResourceHandle, resType string) error {
	return s.Called(h, resType).Error(0)
}

func (s *Stack) BindInterface(h transport.ResourceHandle, iface model.Interface) error {
	return s.Called(h, iface).Error(0)
}

func (s *Stack) BindResource(parent, child transport.ResourceHandle) error {
	return s.Called(parent, child).Error(0)
}

func (s *Stack) UnbindResource(parent, child transport.ResourceHandle) error {
	return s.Called(parent, child).Error(0)
}

func (s *Stack) NotifyAll(h transport.ResourceHandle) error {
	return s.Called(h).Error(0)
}

func (s *Stack) NotifyList(h transport.ResourceHandle, ids []uint32, resp transport.OutboundResponse) error {
	return s.Called(h, ids, resp).Error(0)
}

func (s *Stack) SendResponse(resp transport.OutboundResponse) error {
	return s.Called(resp).Error(0)
}

func (s *Stack) DoRequest(req transport.Request) (transport.ObserveHandle, error) {
	args := s.Called(req)
	return args.Get(0).(transport.ObserveHandle), args.Error(1)
}

func (s *Stack) CancelObserve(h transport.ObserveHandle, opts []model.HeaderOption) error {
	return s.Called(h, opts).Error(0)
}

func (s *Stack) Discover(uri string, connType wire.ConnType, ticket uint64) error {
	return s.Called(uri, connType, ticket).Error(0)
}

func (s *Stack) SubscribePresence(host, resType string, ticket uint64) (transport.PresenceHandle, error) {
	args := s.Called(host, resType, ticket)
	return args.Get(0).(transport.PresenceHandle), args.Error(1)
}

func (s *Stack) UnsubscribePresence(h transport.PresenceHandle) error {
	return s.Called(h).Error(0)
}

func (s *Stack) StartPresence(ttl uint32) error {
	return s.Called(ttl).Error(0)
}

func (s *Stack) StopPresence() error {
	return s.Called().Error(0)
}

func (s *Stack) Host() string {
	return s.Called().String(0)
}

func (s *Stack) Process(timeout time.Duration) error {
	return s.Called(timeout).Error(0)
}

func (s *Stack) Close() error {
	return s.Called().Error(0)
}

package transport_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/iotcon/iotcon-go/pkg/errcode"
	"github.com/iotcon/iotcon-go/pkg/model"
	"github.com/iotcon/iotcon-go/pkg/transport"
	"github.com/iotcon/iotcon-go/pkg/transport/transporttest"
)

func TestGuardForwards(t *testing.T) {
	stack := &transporttest.Stack{}
	g := transport.NewGuard(stack)
	assert.Same(t, stack, g.Stack())

	stack.On("CreateResource", "/a", "core.a", model.InterfaceDefault, model.PropertyDiscoverable).
		Return(transport.ResourceHandle(4), nil)
	stack.On("BindType", transport.ResourceHandle(4), "core.b").Return(errcode.ErrTransport)
	stack.On("Host").Return("coap://127.0.0.1:5683")
	stack.On("Process", 10*time.Millisecond).Return(nil)

	h, err := g.CreateResource("/a", "core.a", model.InterfaceDefault, model.PropertyDiscoverable)
	require.NoError(t, err)
	assert.Equal(t, transport.ResourceHandle(4), h)
	assert.ErrorIs(t, g.BindType(h, "core.b"), errcode.ErrTransport)
	assert.Equal(t, "coap://127.0.0.1:5683", g.Host())
	assert.NoError(t, g.Process(10*time.Millisecond))

	stack.AssertExpectations(t)
}

func TestGuardSerializesCalls(t *testing.T) {
	stack := &transporttest.Stack{}
	g := transport.NewGuard(stack)

	var inside, maxInside atomic.Int32
	stack.On("NotifyAll", mock.Anything).Return(nil).Run(func(mock.Arguments) {
		n := inside.Add(1)
		for {
			m := maxInside.Load()
			if n <= m || maxInside.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		inside.Add(-1)
	})

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, g.NotifyAll(transport.ResourceHandle(i+1)))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside.Load())
	stack.AssertNumberOfCalls(t, "NotifyAll", 8)
}

// A delivery run by Process may call back into the guard without
// deadlocking.
func TestGuardProcessIsUnlocked(t *testing.T) {
	net := transport.NewNetwork()
	node, err := net.NewNode(transport.NodeConfig{})
	require.NoError(t, err)
	g := transport.NewGuard(node)
	t.Cleanup(func() { g.Close() })

	created := make(chan transport.ResourceHandle, 1)
	require.NoError(t, g.Start(callbackFunc(func() {
		h, err := g.CreateResource("/from/callback", "core.x", model.InterfaceDefault, 0)
		assert.NoError(t, err)
		created <- h
	})))
	_, err = g.SubscribePresence("", "", 1)
	require.NoError(t, err)
	require.NoError(t, g.StartPresence(10))

	require.NoError(t, g.Process(10*time.Millisecond))
	select {
	case h := <-created:
		assert.NotZero(t, h)
	default:
		t.Fatal("presence callback did not run")
	}
}

// callbackFunc runs fn on the first presence delivery.
type callbackFunc func()

func (f callbackFunc) OnResponse(uint64, transport.Response) {}
func (f callbackFunc) OnDiscovered(uint64, string, []byte)   {}
func (f callbackFunc) OnRequest(transport.InboundRequest)    {}
func (f callbackFunc) OnPresence(_ uint64, p transport.Presence) {
	if p.ResourceType == "" {
		f()
	}
}

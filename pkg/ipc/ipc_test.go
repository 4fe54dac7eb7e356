package ipc

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iotcon/iotcon-go/pkg/errcode"
	"github.com/iotcon/iotcon-go/pkg/wire"
)

type echoArgs struct {
	Text string `cbor:"1,keyasint"`
}

func startServer(t *testing.T, h HandlerFunc, onDisconnect func(string)) *Server {
	t.Helper()
	srv, err := NewServer(ServerConfig{
		Path:         filepath.Join(t.TempDir(), "iotcon.sock"),
		Handler:      h,
		OnDisconnect: onDisconnect,
	})
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() { srv.Stop() })
	return srv
}

func dial(t *testing.T, srv *Server, cfg ClientConfig) *Client {
	t.Helper()
	cfg.Path = srv.config.Path
	c, err := Dial(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCallReplyAndErrorCodes(t *testing.T) {
	srv := startServer(t, func(_ context.Context, sender, method string, body cbor.RawMessage) (any, error) {
		switch method {
		case "Echo":
			var args echoArgs
			if err := wire.DecodePayload(body, &args); err != nil {
				return nil, fmt.Errorf("%v: %w", err, errcode.ErrInvalidParameter)
			}
			return echoArgs{Text: args.Text + "@" + sender[:4]}, nil
		case "Missing":
			return nil, fmt.Errorf("handle 9: %w", errcode.ErrNoData)
		default:
			return nil, errcode.ErrNotSupported
		}
	}, nil)
	c := dial(t, srv, ClientConfig{})

	var out echoArgs
	require.NoError(t, c.Call(context.Background(), "Echo", echoArgs{Text: "hi"}, &out))
	assert.Contains(t, out.Text, "hi@")

	err := c.Call(context.Background(), "Missing", nil, nil)
	assert.ErrorIs(t, err, errcode.ErrNoData)
	assert.Equal(t, errcode.NoData, errcode.Of(err))

	assert.ErrorIs(t, c.Call(context.Background(), "Nope", nil, nil), errcode.ErrNotSupported)
}

func TestSignalsArriveInOrder(t *testing.T) {
	senders := make(chan string, 1)
	srv := startServer(t, func(_ context.Context, sender, _ string, _ cbor.RawMessage) (any, error) {
		senders <- sender
		return nil, nil
	}, nil)

	var mu sync.Mutex
	var got []string
	all := make(chan struct{})
	c := dial(t, srv, ClientConfig{OnSignal: func(name string, _ cbor.RawMessage) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, name)
		if len(got) == 5 {
			close(all)
		}
	}})

	require.NoError(t, c.Call(context.Background(), "Hello", nil, nil))
	sender := <-senders
	for i := range 5 {
		require.NoError(t, srv.Emit(sender, wire.SignalName(wire.SignalGet, uint32(i)), wire.ResponseSignal{}))
	}

	select {
	case <-all:
	case <-time.After(5 * time.Second):
		t.Fatal("signals not delivered")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"GET_0", "GET_1", "GET_2", "GET_3", "GET_4"}, got)

	assert.ErrorIs(t, srv.Emit("unknown", "REQ_1", nil), errcode.ErrIPC)
}

func TestCallTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := startServer(t, func(context.Context, string, string, cbor.RawMessage) (any, error) {
		<-release
		return nil, nil
	}, nil)
	defer close(release)

	c := dial(t, srv, ClientConfig{})
	require.NoError(t, c.SetTimeout(50*time.Millisecond))
	assert.ErrorIs(t, c.SetTimeout(0), errcode.ErrInvalidParameter)

	err := c.Call(context.Background(), "Slow", nil, nil)
	assert.ErrorIs(t, err, errcode.ErrTimeout)
}

func TestConnectionLoss(t *testing.T) {
	gone := make(chan string, 1)
	srv := startServer(t, func(context.Context, string, string, cbor.RawMessage) (any, error) {
		return nil, nil
	}, func(sender string) { gone <- sender })

	closed := make(chan error, 1)
	c := dial(t, srv, ClientConfig{OnClose: func(err error) { closed <- err }})
	require.NoError(t, c.Call(context.Background(), "Ping", nil, nil))
	require.Equal(t, 1, srv.ConnectionCount())

	require.NoError(t, srv.Stop())

	select {
	case err := <-closed:
		assert.True(t, errors.Is(err, errcode.ErrIPC))
	case <-time.After(5 * time.Second):
		t.Fatal("OnClose not called")
	}
	select {
	case <-gone:
	case <-time.After(5 * time.Second):
		t.Fatal("OnDisconnect not called")
	}
	assert.ErrorIs(t, c.Call(context.Background(), "Ping", nil, nil), errcode.ErrIPC)
}

func TestCloseDoesNotReportLoss(t *testing.T) {
	srv := startServer(t, func(context.Context, string, string, cbor.RawMessage) (any, error) {
		return nil, nil
	}, nil)

	called := false
	c := dial(t, srv, ClientConfig{OnClose: func(error) { called = true }})
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	<-c.Done()
	assert.False(t, called)
}

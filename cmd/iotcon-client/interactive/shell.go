// Package interactive provides the interactive command-line interface
// of iotcon-client.
package interactive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chzyer/readline"

	"github.com/iotcon/iotcon-go/pkg/client"
	"github.com/iotcon/iotcon-go/pkg/model"
	"github.com/iotcon/iotcon-go/pkg/wire"
)

// Shell runs commands against a daemon connection.
type Shell struct {
	client *client.Client
	rl     *readline.Instance
	out    io.Writer

	mu       sync.Mutex
	found    []*client.RemoteResource
	served   map[string]*client.LiteResource
	presence *client.Presence
}

// New creates a shell on c.
func New(c *client.Client) (*Shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "iotcon> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Shell{
		client: c,
		rl:     rl,
		out:    rl.Stdout(),
		served: make(map[string]*client.LiteResource),
	}, nil
}

// Stdout returns a writer that coordinates with the prompt.
func (s *Shell) Stdout() io.Writer {
	return s.rl.Stdout()
}

// Run reads commands until quit, EOF or ctx ends.
func (s *Shell) Run(ctx context.Context, cancel context.CancelFunc) {
	defer s.rl.Close()

	s.printHelp()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := s.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			fmt.Fprintln(s.out, "Exiting...")
			cancel()
			return
		}

		parts := strings.Fields(strings.TrimSpace(line))
		if len(parts) == 0 {
			continue
		}
		cmd, args := strings.ToLower(parts[0]), parts[1:]
		if cmd == "quit" || cmd == "exit" || cmd == "q" {
			fmt.Fprintln(s.out, "Exiting...")
			cancel()
			return
		}
		if err := s.exec(ctx, cmd, args); err != nil {
			fmt.Fprintf(s.out, "Error: %v\n", err)
		}
	}
}

func (s *Shell) exec(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "help", "?":
		s.printHelp()
		return nil
	case "find", "f":
		return s.cmdFind(ctx, args)
	case "list", "ls":
		s.cmdList()
		return nil
	case "get", "g":
		return s.cmdGet(ctx, args)
	case "put":
		return s.cmdWrite(ctx, wire.MethodPut, args)
	case "post":
		return s.cmdWrite(ctx, wire.MethodPost, args)
	case "delete", "del":
		return s.cmdDelete(ctx, args)
	case "observe", "obs":
		return s.cmdObserve(ctx, args)
	case "unobserve":
		return s.cmdUnobserve(ctx, args)
	case "cache":
		return s.cmdCache(args)
	case "monitor":
		return s.cmdMonitor(args)
	case "presence":
		return s.cmdPresence(ctx, args)
	case "serve":
		return s.cmdServe(ctx, args)
	case "update":
		return s.cmdUpdate(ctx, args)
	case "unserve":
		return s.cmdUnserve(ctx, args)
	case "timeout":
		return s.cmdTimeout(args)
	default:
		return fmt.Errorf("unknown command: %s (type 'help' for commands)", cmd)
	}
}

func (s *Shell) printHelp() {
	fmt.Fprintln(s.out, `
iotcon Client Commands:
  Discovery:
    find [type] [host]               - Find resources (all hosts when host is omitted)
    list                             - List found resources

  Requests (n is the number shown by list):
    get <n> [key=value...]           - Read a resource with an optional query
    put <n> key=value...             - Replace attributes
    post <n> key=value...            - Post attributes
    delete <n>                       - Delete a resource
    observe <n>                      - Observe a resource
    unobserve <n>                    - Stop observing
    cache <n> [on|off] [interval]    - Poll and cache a resource
    monitor <n> [on|off] [interval]  - Report when a resource comes or goes

  Presence:
    presence start [ttl]             - Start this device's presence beacon
    presence stop                    - Stop it
    presence watch [host]            - Watch presence beacons
    presence unwatch                 - Stop watching

  Serving:
    serve <uri> <type> key=value...  - Serve an observable resource
    update <uri> key=value...        - Change a served resource
    unserve <uri>                    - Stop serving a resource

  General:
    timeout [seconds]                - Show or set the daemon call timeout
    help                             - Show this help
    quit                             - Exit`)
}

func (s *Shell) cmdFind(ctx context.Context, args []string) error {
	var resType, host string
	if len(args) > 0 {
		resType = args[0]
	}
	if len(args) > 1 {
		host = args[1]
	}
	return s.client.FindResource(ctx, host, wire.ConnIPv4, resType, func(r *client.RemoteResource, err error) {
		if err != nil {
			fmt.Fprintf(s.out, "[FIND] bad result: %v\n", err)
			return
		}
		s.mu.Lock()
		s.found = append(s.found, r)
		n := len(s.found)
		s.mu.Unlock()
		fmt.Fprintf(s.out, "[FIND] %d: %s%s %v\n", n, r.Host(), r.URIPath(), r.Types())
	})
}

func (s *Shell) cmdList() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.found) == 0 {
		fmt.Fprintln(s.out, "No resources found yet")
		return
	}
	for i, r := range s.found {
		flags := ""
		if r.Observable() {
			flags = " observable"
		}
		if r.Observing() {
			flags += " observing"
		}
		fmt.Fprintf(s.out, "  %d: %s%s %v %s%s\n", i+1, r.Host(), r.URIPath(), r.Types(), r.Interfaces(), flags)
	}
}

// resource returns the found resource numbered by arg.
func (s *Shell) resource(args []string) (*client.RemoteResource, error) {
	if len(args) == 0 {
		return nil, errors.New("resource number required")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return nil, fmt.Errorf("invalid resource number: %s", args[0])
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if n < 1 || n > len(s.found) {
		return nil, fmt.Errorf("no resource %d (see list)", n)
	}
	return s.found[n-1], nil
}

func (s *Shell) printer(label string) client.ResponseCallback {
	return func(r *client.RemoteResource, resp client.RemoteResponse, err error) {
		if err != nil {
			fmt.Fprintf(s.out, "[%s] %s: %v\n", label, r.URIPath(), err)
			return
		}
		seq := ""
		if label == "OBSERVE" {
			seq = fmt.Sprintf(" seq=%d", resp.Sequence)
		}
		fmt.Fprintf(s.out, "[%s] %s: %s%s %s\n", label, r.URIPath(), resp.Result, seq, formatRepr(resp.Repr))
	}
}

func (s *Shell) cmdGet(ctx context.Context, args []string) error {
	r, err := s.resource(args)
	if err != nil {
		return err
	}
	q, err := parseQuery(args[1:])
	if err != nil {
		return err
	}
	return r.Get(ctx, q, s.printer("GET"))
}

func (s *Shell) cmdWrite(ctx context.Context, method wire.Method, args []string) error {
	r, err := s.resource(args)
	if err != nil {
		return err
	}
	repr, err := parseAssignments(args[1:])
	if err != nil {
		return err
	}
	defer repr.Release()
	if method == wire.MethodPut {
		return r.Put(ctx, repr, nil, s.printer("PUT"))
	}
	return r.Post(ctx, repr, nil, s.printer("POST"))
}

func (s *Shell) cmdDelete(ctx context.Context, args []string) error {
	r, err := s.resource(args)
	if err != nil {
		return err
	}
	return r.Delete(ctx, s.printer("DELETE"))
}

func (s *Shell) cmdObserve(ctx context.Context, args []string) error {
	r, err := s.resource(args)
	if err != nil {
		return err
	}
	return r.ObserveStart(ctx, wire.ObserveEach, nil, s.printer("OBSERVE"))
}

func (s *Shell) cmdUnobserve(ctx context.Context, args []string) error {
	r, err := s.resource(args)
	if err != nil {
		return err
	}
	return r.ObserveStop(ctx)
}

// toggle parses the optional on|off and interval arguments after the
// resource number.
func toggle(args []string) (bool, time.Duration, error) {
	on, interval := true, time.Duration(0)
	if len(args) > 1 {
		switch args[1] {
		case "on":
		case "off":
			on = false
		default:
			return false, 0, fmt.Errorf("expected on or off, got %q", args[1])
		}
	}
	if len(args) > 2 {
		d, err := time.ParseDuration(args[2])
		if err != nil {
			return false, 0, err
		}
		interval = d
	}
	return on, interval, nil
}

func (s *Shell) cmdCache(args []string) error {
	r, err := s.resource(args)
	if err != nil {
		return err
	}
	on, interval, err := toggle(args)
	if err != nil {
		return err
	}
	if !on {
		return r.StopCaching()
	}
	return r.StartCaching(interval, func(r *client.RemoteResource, repr *model.Representation) {
		fmt.Fprintf(s.out, "[CACHE] %s: %s\n", r.URIPath(), formatRepr(repr))
	})
}

func (s *Shell) cmdMonitor(args []string) error {
	r, err := s.resource(args)
	if err != nil {
		return err
	}
	on, interval, err := toggle(args)
	if err != nil {
		return err
	}
	if !on {
		return r.StopMonitoring()
	}
	return r.StartMonitoring(interval, func(r *client.RemoteResource, state client.ResourceState) {
		fmt.Fprintf(s.out, "[MONITOR] %s%s: %s\n", r.Host(), r.URIPath(), state)
	})
}

func (s *Shell) cmdPresence(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: presence start|stop|watch|unwatch")
	}
	switch args[0] {
	case "start":
		var ttl uint64
		if len(args) > 1 {
			v, err := strconv.ParseUint(args[1], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid ttl: %s", args[1])
			}
			ttl = v
		}
		return s.client.StartPresence(ctx, uint32(ttl))
	case "stop":
		return s.client.StopPresence(ctx)
	case "watch":
		var host string
		if len(args) > 1 {
			host = args[1]
		}
		p, err := s.client.SubscribePresence(ctx, host, wire.ConnIPv4, "", func(result wire.PresenceResult, nonce uint32, host string) {
			fmt.Fprintf(s.out, "[PRESENCE] %s: %s nonce=%d\n", host, result, nonce)
		})
		if err != nil {
			return err
		}
		s.mu.Lock()
		old := s.presence
		s.presence = p
		s.mu.Unlock()
		if old != nil {
			return old.Unsubscribe(ctx)
		}
		return nil
	case "unwatch":
		s.mu.Lock()
		p := s.presence
		s.presence = nil
		s.mu.Unlock()
		if p == nil {
			return errors.New("not watching presence")
		}
		return p.Unsubscribe(ctx)
	default:
		return fmt.Errorf("unknown presence command: %s", args[0])
	}
}

func (s *Shell) cmdServe(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: serve <uri> <type> key=value...")
	}
	uri := args[0]
	types, err := model.NewResourceTypes(args[1])
	if err != nil {
		return err
	}
	defer types.Release()
	state, err := parseAssignments(args[2:])
	if err != nil {
		return err
	}
	defer state.Release()

	lite, err := s.client.CreateLiteResource(ctx, uri, types,
		model.PropertyDiscoverable|model.PropertyObservable, state, nil)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.served[uri] = lite
	s.mu.Unlock()
	fmt.Fprintf(s.out, "Serving %s (handle %d)\n", uri, lite.Resource().Handle())
	return nil
}

func (s *Shell) servedAt(uri string) (*client.LiteResource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lite, ok := s.served[uri]
	if !ok {
		return nil, fmt.Errorf("not serving %s", uri)
	}
	return lite, nil
}

func (s *Shell) cmdUpdate(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: update <uri> key=value...")
	}
	lite, err := s.servedAt(args[0])
	if err != nil {
		return err
	}
	update, err := parseAssignments(args[1:])
	if err != nil {
		return err
	}
	defer update.Release()

	state := lite.State()
	defer state.Release()
	next := state.Clone()
	defer next.Release()
	for key, v := range update.All() {
		if err := next.Set(key, v); err != nil {
			return err
		}
	}
	return lite.UpdateState(ctx, next)
}

func (s *Shell) cmdUnserve(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return errors.New("usage: unserve <uri>")
	}
	lite, err := s.servedAt(args[0])
	if err != nil {
		return err
	}
	if err := lite.Destroy(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.served, args[0])
	s.mu.Unlock()
	return nil
}

func (s *Shell) cmdTimeout(args []string) error {
	if len(args) == 0 {
		fmt.Fprintf(s.out, "Timeout: %s\n", s.client.Timeout())
		return nil
	}
	secs, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid timeout: %s", args[0])
	}
	return s.client.SetTimeout(time.Duration(secs) * time.Second)
}

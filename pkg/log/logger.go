package log

import (
	"time"
)

// Logger receives protocol events. Implementations must be safe for
// concurrent use and should not block.
type Logger interface {
	Log(event Event)
}

// NoopLogger discards all events.
type NoopLogger struct{}

// Log discards the event.
func (NoopLogger) Log(Event) {}

// MultiLogger fans events out to several loggers.
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger creates a MultiLogger. Nil loggers are skipped.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	m := &MultiLogger{}
	for _, l := range loggers {
		if l != nil {
			m.loggers = append(m.loggers, l)
		}
	}
	return m
}

// Log sends the event to every logger.
func (m *MultiLogger) Log(event Event) {
	for _, l := range m.loggers {
		l.Log(event)
	}
}

var (
	_ Logger = NoopLogger{}
	_ Logger = (*MultiLogger)(nil)
)

// Recorder stamps events with time and role before handing them to a Logger.
// A nil *Recorder records nothing.
type Recorder struct {
	logger Logger
	role   Role
	now    func() time.Time
}

// NewRecorder creates a Recorder. A nil logger yields a nil Recorder.
func NewRecorder(logger Logger, role Role) *Recorder {
	if logger == nil {
		return nil
	}
	if _, ok := logger.(NoopLogger); ok {
		return nil
	}
	return &Recorder{logger: logger, role: role, now: time.Now}
}

func (r *Recorder) emit(connID string, dir Direction, layer Layer, cat Category, ev Event) {
	if r == nil {
		return
	}
	ev.Timestamp = r.now()
	ev.ConnectionID = connID
	ev.Direction = dir
	ev.Layer = layer
	ev.Category = cat
	ev.LocalRole = r.role
	r.logger.Log(ev)
}

// Frame records a raw IPC frame.
func (r *Recorder) Frame(connID string, dir Direction, frame *FrameEvent) {
	r.emit(connID, dir, LayerIPC, CategoryMessage, Event{Frame: frame})
}

// Call records an IPC call.
func (r *Recorder) Call(connID string, dir Direction, id uint64, method string, body []byte) {
	r.emit(connID, dir, LayerIPC, CategoryMessage, Event{Message: &MessageEvent{
		Type:    MessageTypeCall,
		ID:      id,
		Method:  method,
		Payload: body,
	}})
}

// Reply records an IPC reply with its error code and the time the call took.
func (r *Recorder) Reply(connID string, dir Direction, id uint64, method string, code int, elapsed time.Duration) {
	r.emit(connID, dir, LayerIPC, CategoryMessage, Event{Message: &MessageEvent{
		Type:           MessageTypeReply,
		ID:             id,
		Method:         method,
		Code:           &code,
		ProcessingTime: &elapsed,
	}})
}

// Signal records a signal sent to or received from a client.
func (r *Recorder) Signal(connID string, dir Direction, name string, ticket uint64, body []byte) {
	r.emit(connID, dir, LayerIPC, CategoryMessage, Event{Message: &MessageEvent{
		Type:    MessageTypeSignal,
		Method:  name,
		Ticket:  ticket,
		Payload: body,
	}})
}

// Request records a request the dispatcher issued to the network stack.
func (r *Recorder) Request(connID, method, uri string, ticket uint64) {
	r.emit(connID, DirectionOut, LayerDispatch, CategoryMessage, Event{Message: &MessageEvent{
		Type:   MessageTypeRequest,
		Method: method,
		URI:    uri,
		Ticket: ticket,
	}})
}

// Completion records a network completion resolved by the dispatcher.
func (r *Recorder) Completion(connID, method string, ticket uint64, result string, body []byte) {
	r.emit(connID, DirectionIn, LayerDispatch, CategoryMessage, Event{Message: &MessageEvent{
		Type:    MessageTypeResponse,
		Method:  method,
		Ticket:  ticket,
		Result:  result,
		Payload: body,
	}})
}

// State records a state change.
func (r *Recorder) State(connID string, entity StateEntity, oldState, newState, reason string) {
	r.emit(connID, DirectionIn, LayerIPC, CategoryState, Event{StateChange: &StateChangeEvent{
		Entity:   entity,
		OldState: oldState,
		NewState: newState,
		Reason:   reason,
	}})
}

// Error records an error at layer.
func (r *Recorder) Error(connID string, layer Layer, err error, code int, context string) {
	if err == nil {
		return
	}
	r.emit(connID, DirectionIn, layer, CategoryError, Event{Error: &ErrorEventData{
		Layer:   layer,
		Message: err.Error(),
		Code:    &code,
		Context: context,
	}})
}

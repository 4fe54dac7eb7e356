package wire

// Method identifies the kind of request carried by a ticket or signal.
type Method uint8

const (
	MethodGet Method = iota + 1
	MethodPut
	MethodPost
	MethodDelete
	MethodObserve
	MethodFind
	MethodPresence
	MethodNotify
)

// String returns the method name.
func (m Method) String() string {
	switch m {
	case MethodGet:
		return "GET"
	case MethodPut:
		return "PUT"
	case MethodPost:
		return "POST"
	case MethodDelete:
		return "DELETE"
	case MethodObserve:
		return "OBSERVE"
	case MethodFind:
		return "FIND"
	case MethodPresence:
		return "PRESENCE"
	case MethodNotify:
		return "NOTIFY"
	default:
		return "UNKNOWN"
	}
}

// IsCRUD reports whether m is one of GET, PUT, POST and DELETE.
func (m Method) IsCRUD() bool {
	return m >= MethodGet && m <= MethodDelete
}

// ResponseResult is the outcome a server reports for a request.
type ResponseResult uint8

const (
	ResultOK ResponseResult = iota
	ResultError
	ResultResourceCreated
	ResultResourceDeleted
	ResultSlow
	ResultForbidden
)

// String returns the result name.
func (r ResponseResult) String() string {
	switch r {
	case ResultOK:
		return "OK"
	case ResultError:
		return "ERROR"
	case ResultResourceCreated:
		return "RESOURCE_CREATED"
	case ResultResourceDeleted:
		return "RESOURCE_DELETED"
	case ResultSlow:
		return "SLOW"
	case ResultForbidden:
		return "FORBIDDEN"
	default:
		return "UNKNOWN"
	}
}

// IsValid reports whether r is a known result.
func (r ResponseResult) IsValid() bool {
	return r <= ResultForbidden
}

// PresenceResult is delivered with every presence signal.
type PresenceResult uint8

const (
	PresenceOK PresenceResult = iota
	PresenceStopped
	PresenceTimeout
	PresenceError
)

// String returns the presence result name.
func (p PresenceResult) String() string {
	switch p {
	case PresenceOK:
		return "OK"
	case PresenceStopped:
		return "STOPPED"
	case PresenceTimeout:
		return "TIMEOUT"
	case PresenceError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ObserveAction is attached to inbound requests.
type ObserveAction uint8

const (
	ObserveRegister ObserveAction = iota
	ObserveDeregister
	ObserveNoOption
)

// String returns the observe action name.
func (a ObserveAction) String() string {
	switch a {
	case ObserveRegister:
		return "REGISTER"
	case ObserveDeregister:
		return "DEREGISTER"
	case ObserveNoOption:
		return "NO_OPTION"
	default:
		return "UNKNOWN"
	}
}

// ObserveType selects how an observation is established.
type ObserveType uint8

const (
	ObserveEach ObserveType = iota
	ObserveAll
)

// RequestType flags describe what an inbound request carries.
type RequestType uint8

const (
	RequestNone    RequestType = 0
	RequestInit    RequestType = 1 << 0
	RequestCRUD    RequestType = 1 << 1
	RequestObserve RequestType = 1 << 2
)

// ConnType selects the address family used to reach a remote resource.
type ConnType uint8

const (
	ConnIPv4 ConnType = 1 << 0
	ConnIPv6 ConnType = 1 << 1
	ConnAll           = ConnIPv4 | ConnIPv6
)

// NotifyErrorCode is the error code carried by notification messages.
const NotifyErrorCode = 200

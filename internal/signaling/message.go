package signaling

// Client-originated message types. The vocabulary is closed: anything else
// is logged and dropped.
const (
	TypeCreateSession      = "create_session"
	TypeJoinSession        = "join_session"
	TypeConnectToSession   = "connect_to_session"
	TypeRegisterSession    = "register_session"
	TypeLeaveSession       = "leave_session"
	TypeRequestConnection  = "request_connection"
	TypeConnectionResponse = "connection_response"

	TypeOffer        = "offer"
	TypeAnswer       = "answer"
	TypeICECandidate = "ice_candidate"

	TypeMouseMove        = "mouse_move"
	TypeMouseClick       = "mouse_click"
	TypeMouseDown        = "mouse_down"
	TypeMouseUp          = "mouse_up"
	TypeKeyDown          = "key_down"
	TypeKeyUp            = "key_up"
	TypeScreenResolution = "screen_resolution"

	TypePermissionRequest  = "permission_request"
	TypePermissionResponse = "permission_response"
)

// Server-originated message types.
const (
	TypeSessionCreated            = "session_created"
	TypeSessionJoined             = "session_joined"
	TypeSessionConnected          = "session_connected"
	TypeSessionRegistered         = "session_registered"
	TypeSessionPending            = "session_pending"
	TypeSessionError              = "session_error"
	TypeRegistrationError         = "registration_error"
	TypeConnectionError           = "connection_error"
	TypeSessionCreationRequest    = "session_creation_request"
	TypeConnectionRequest         = "connection_request"
	TypeIncomingConnectionRequest = "incoming_connection_request"
	TypeConnectionAccepted        = "connection_accepted"
	TypeConnectionDeclined        = "connection_declined"
	TypeConnectionRejected        = "connection_rejected"
	TypeStartScreenSharing        = "start_screen_sharing"
	TypeHostDisconnected          = "host_disconnected"
	TypeClientJoined              = "client_joined"
	TypeClientLeft                = "client_left"
)

// Roles reported by session_connected.
const (
	RoleHost   = "host"
	RoleClient = "client"
)

// Envelope is the addressing portion of an inbound frame. Payload fields
// beyond these are never inspected; forwarded frames are relayed verbatim
// from the raw bytes.
type Envelope struct {
	Type            string `json:"type"`
	SessionID       string `json:"sessionId,omitempty"`
	ClientID        string `json:"clientId,omitempty"`
	TargetSessionID string `json:"targetSessionId,omitempty"`
	FromSessionID   string `json:"fromSessionId,omitempty"`
	Accepted        *bool  `json:"accepted,omitempty"`
	Granted         *bool  `json:"granted,omitempty"`
}

// serverMsg is the shape of every relay-originated frame.
type serverMsg struct {
	Type            string `json:"type"`
	SessionID       string `json:"sessionId,omitempty"`
	ClientID        string `json:"clientId,omitempty"`
	TargetSessionID string `json:"targetSessionId,omitempty"`
	FromSessionID   string `json:"fromSessionId,omitempty"`
	Role            string `json:"role,omitempty"`
	Error           string `json:"error,omitempty"`
}

func isSignalingType(t string) bool {
	switch t {
	case TypeOffer, TypeAnswer, TypeICECandidate:
		return true
	}
	return false
}

func isControlType(t string) bool {
	switch t {
	case TypeMouseMove, TypeMouseClick, TypeMouseDown, TypeMouseUp,
		TypeKeyDown, TypeKeyUp, TypeScreenResolution:
		return true
	}
	return false
}

func isPermissionType(t string) bool {
	switch t {
	case TypePermissionRequest, TypePermissionResponse:
		return true
	}
	return false
}

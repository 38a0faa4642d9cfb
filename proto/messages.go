// Package proto implements the base protocol: the fixed message set every
// connection speaks before any plug-in payload, and the registry that maps
// message ids to the plug-in that owns them.
package proto

// Base protocol message ids. The base protocol reserves [0, MessagesEnd);
// every plug-in's range starts at MessagesEnd or at the end of the
// previously registered plug-in's range (Registry.Register).
const (
	ConnectRequest uint16 = iota
	ConnectReply
	ConnectReject
	ClientConnect
	ClientDisconnect
	ClientUpdate
	ServerUpdate
	DisconnectRequest
	DisconnectReply

	// MessagesEnd marks the end of the base protocol's reserved range; the
	// first plug-in registered is assigned base = MessagesEnd.
	MessagesEnd
)

// Name returns a human-readable name for a base protocol message id, or ""
// if id is not a base protocol message (used only for logging).
func Name(id uint16) string {
	switch id {
	case ConnectRequest:
		return "CONNECT_REQUEST"
	case ConnectReply:
		return "CONNECT_REPLY"
	case ConnectReject:
		return "CONNECT_REJECT"
	case ClientConnect:
		return "CLIENT_CONNECT"
	case ClientDisconnect:
		return "CLIENT_DISCONNECT"
	case ClientUpdate:
		return "CLIENT_UPDATE"
	case ServerUpdate:
		return "SERVER_UPDATE"
	case DisconnectRequest:
		return "DISCONNECT_REQUEST"
	case DisconnectReply:
		return "DISCONNECT_REPLY"
	default:
		return ""
	}
}

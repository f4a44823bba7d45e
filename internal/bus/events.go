package bus

// ChatMessage is one inbound chat event as it arrives from the transport.
// Ts carries the platform's raw epoch-seconds value; it is converted to an
// absolute timestamp only when the message is persisted.
type ChatMessage struct {
	Type    string
	Subtype string
	Channel string
	User    string
	Text    string
	Ts      string
	Team    string
}

// Identity is the bot's own resolved platform identity, delivered once by
// the transport after a successful connect.
type Identity struct {
	Name string
	ID   string
}

// OutboundMessage is a reply headed back to the platform.
type OutboundMessage struct {
	Transport string
	Channel   string
	Text      string
}

package relay

import "strconv"

// Bucket key layout. The namespace is flat; everything a session owns is
// scoped by its session id.
const (
	ChannelPrefix  = "channel-"    // public; an upload capability for a request key
	RequestPrefix  = "request-"    // written by agents through a channel capability
	GrantPrefix    = "sessions."   // public; the session's outbound upload capability
	OutboundPrefix = "client.msg." // agent -> controller
	InboundPrefix  = "server.msg." // controller -> agent; public
)

func ChannelKey(id int) string {
	return ChannelPrefix + strconv.Itoa(id)
}

func RequestKey(nonce string) string {
	return RequestPrefix + nonce
}

func GrantKey(sessionID string) string {
	return GrantPrefix + sessionID
}

func OutboundKey(sessionID string) string {
	return OutboundPrefix + sessionID
}

func InboundKey(sessionID string) string {
	return InboundPrefix + sessionID
}

package gobayeux

import "strings"

// Channel represents a Bayeux Channel which is defined as "a string that
// looks like a URL path such as `/foo/bar`, `/meta/connect`, or
// `/service/chat`."
//
// See also: https://docs.cometd.org/current/reference/#_concepts_channels
type Channel string

const (
	// MetaHandshake is the Channel for the first message a new client sends.
	MetaHandshake Channel = "/meta/handshake"
	// MetaConnect is the Channel used for connect messages after a successful
	// handshake.
	MetaConnect Channel = "/meta/connect"
	// MetaDisconnect is the Channel used for disconnect messages.
	MetaDisconnect Channel = "/meta/disconnect"
	// MetaSubscribe is the Channel used by a client to subscribe to channels.
	MetaSubscribe Channel = "/meta/subscribe"
	// MetaUnsubscribe is the Channel used by a client to unsubscribe to
	// channels.
	MetaUnsubscribe Channel = "/meta/unsubscribe"
	emptyChannel    Channel = ""
)

// ChannelType is used to define the three types of channels:
// - meta channels, channels starting with `/meta/`
// - service channels, channels starting with `/service/`
// - broadcast channels, all other channels
type ChannelType string

const (
	// MetaChannel represents the `/meta/` channel type
	MetaChannel ChannelType = "meta"
	// ServiceChannel represents the `/service/` channel type
	ServiceChannel ChannelType = "service"
	// BroadcastChannel represents all other channels
	BroadcastChannel ChannelType = "broadcast"
)

const (
	metaPrefix     string = "/meta/"
	servicePrefix  string = "/service/"
	singleWildcard string = "*"
	deepWildcard   string = "**"
)

// Type provides the type of Channel this struct represents
func (c Channel) Type() ChannelType {
	s := string(c)
	switch {
	case strings.HasPrefix(s, metaPrefix):
		return MetaChannel
	case strings.HasPrefix(s, servicePrefix):
		return ServiceChannel
	default:
		return BroadcastChannel
	}
}

// IsMeta reports whether the channel is a protocol-control channel
func (c Channel) IsMeta() bool {
	return c.Type() == MetaChannel
}

// HasWildcard indicates whether the Channel ends with * or **
//
// See also: https://docs.cometd.org/current/reference/#_concepts_channels_wild
func (c Channel) HasWildcard() bool {
	last := c.lastSegment()
	return last == singleWildcard || last == deepWildcard
}

// IsDeepWildcard indicates whether the Channel ends with **
func (c Channel) IsDeepWildcard() bool {
	return c.lastSegment() == deepWildcard
}

func (c Channel) lastSegment() string {
	s := string(c)
	index := strings.LastIndexByte(s, '/')
	if index == -1 {
		return s
	}
	return s[index+1:]
}

// IsValid does its best to check the validity of a Channel
func (c Channel) IsValid() bool {
	s := string(c)
	if !strings.HasPrefix(s, "/") || len(s) < 2 {
		return false
	}

	segments := c.segments()
	for i, segment := range segments {
		if segment == "" {
			return false
		}
		if strings.Contains(segment, "*") {
			if i != len(segments)-1 {
				return false
			}
			if segment != singleWildcard && segment != deepWildcard {
				return false
			}
		}
	}
	return true
}

func (c Channel) segments() []string {
	return strings.Split(strings.TrimPrefix(string(c), "/"), "/")
}

// Match checks if a given Channel matches this Channel.
// Note wildcards are only valid after the last /.
//
// See also: https://docs.cometd.org/current/reference/#_concepts_channels_wild
func (c Channel) Match(other Channel) bool {
	return c.MatchString(string(other))
}

// MatchString checks if a given string matches this Channel.
// Note wildcards are only valid after the last /.
//
// See also: https://docs.cometd.org/current/reference/#_concepts_channels_wild
func (c Channel) MatchString(other string) bool {
	if !c.HasWildcard() {
		return string(c) == other
	}
	if !c.IsValid() || !strings.HasPrefix(other, "/") {
		return false
	}

	pattern := c.segments()
	candidate := Channel(other).segments()
	prefix := pattern[:len(pattern)-1]

	switch pattern[len(pattern)-1] {
	case singleWildcard:
		if len(candidate) != len(pattern) {
			return false
		}
	case deepWildcard:
		if len(candidate) < len(pattern) {
			return false
		}
	}

	for i, segment := range prefix {
		if candidate[i] != segment {
			return false
		}
	}
	return true
}

// Wildcards returns every wildcard pattern that matches this channel, from
// the most specific to the least specific. For `/a/b/c` these are `/a/b/*`,
// `/a/b/**`, `/a/**` and `/**`.
func (c Channel) Wildcards() []Channel {
	if !c.IsValid() || c.HasWildcard() {
		return nil
	}

	segments := c.segments()
	wilds := make([]Channel, 0, len(segments)+1)
	parent := "/" + strings.Join(segments[:len(segments)-1], "/")
	if len(segments) == 1 {
		parent = ""
	}
	wilds = append(wilds, Channel(parent+"/"+singleWildcard))
	for i := len(segments) - 1; i >= 0; i-- {
		prefix := ""
		if i > 0 {
			prefix = "/" + strings.Join(segments[:i], "/")
		}
		wilds = append(wilds, Channel(prefix+"/"+deepWildcard))
	}
	return wilds
}

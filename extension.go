package gobayeux

import "fmt"

// MessageExtender defines the interface that extensions are expected to
// implement. Outgoing is called for every message before it is sent and
// Incoming for every message received, before listeners see it.
type MessageExtender interface {
	Outgoing(*Message)
	Incoming(*Message)
	Registered(extensionName string, client *BayeuxClient)
	Unregistered()
}

// NamedExtender is implemented by extensions that want to be registered
// under a specific name
type NamedExtender interface {
	Name() string
}

func extensionName(ext MessageExtender) string {
	if named, ok := ext.(NamedExtender); ok {
		return named.Name()
	}
	return fmt.Sprintf("%T", ext)
}

package mqtt

import "fmt"

// Topic prefixes for the Fleetlink MQTT namespace.
const (
	// TopicPrefix is the base for all Fleetlink topics.
	TopicPrefix = "fleetlink"

	// TopicPrefixEvent is the base for mirrored broadcaster events.
	TopicPrefixEvent = "fleetlink/event"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "fleetlink/system"
)

// Topics provides builders for Fleetlink MQTT topics.
// Using these helpers keeps topic naming consistent across the codebase.
//
//	topics := mqtt.Topics{}
//	topic := topics.Event("device.response", "0f3c...")
//	// Returns: "fleetlink/event/device.response/0f3c..."
type Topics struct{}

// Event returns the mirror topic for one broadcaster event.
//
// Example: fleetlink/event/device.registered/0f3c2a51-...
func (Topics) Event(eventType, connectionID string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefixEvent, eventType, connectionID)
}

// SystemStatus returns the server status topic. Carries retained
// online/offline payloads plus the LWT.
//
// Example: fleetlink/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllEvents returns a pattern matching every mirrored event.
//
// Pattern: fleetlink/event/+/+
func (Topics) AllEvents() string {
	return fmt.Sprintf("%s/+/+", TopicPrefixEvent)
}

// AllTopics returns a pattern matching all Fleetlink topics.
//
// Pattern: fleetlink/#
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}

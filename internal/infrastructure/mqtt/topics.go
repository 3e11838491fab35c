package mqtt

import "fmt"

// Topic prefixes. Bridge topics use the flat scheme
// graylogic/{category}/{protocol}.
const (
	TopicPrefixBridge = "graylogic"
	TopicPrefixCore   = "graylogic/core"
	TopicPrefixSystem = "graylogic/system"
)

// Topics provides builders for the topics this service publishes on.
//
//	topics := mqtt.Topics{}
//	topics.CoreEvent("tuya_linked") // "graylogic/core/event/tuya_linked"
type Topics struct{}

// CoreEvent returns the topic for a core event.
//
// Example: graylogic/core/event/tuya_linked
func (Topics) CoreEvent(eventType string) string {
	return fmt.Sprintf("%s/event/%s", TopicPrefixCore, eventType)
}

// BridgeDiscovery returns the topic for device discovery from a bridge.
//
// Example: graylogic/discovery/tuya
func (Topics) BridgeDiscovery(protocol string) string {
	return fmt.Sprintf("%s/discovery/%s", TopicPrefixBridge, protocol)
}

// SystemStatus returns the retained status topic of this service.
//
// Example: graylogic/system/tuya/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/tuya/status", TopicPrefixSystem)
}

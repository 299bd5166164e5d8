package mqtt

import (
	"fmt"
	"strings"
)

// Topic layout for the purifier bridge.
//
// All topics use the flat scheme graylogic/{category}/airdog/{id}, where id
// is a configured device id (command, ack, state) or a caller-chosen request
// id (request, response). Health has no id segment.
const (
	// TopicPrefix is the root of every topic the bridge publishes or consumes.
	TopicPrefix = "graylogic"

	// Protocol is the protocol segment for this bridge.
	Protocol = "airdog"
)

// Topic categories.
const (
	CategoryCommand  = "command"
	CategoryAck      = "ack"
	CategoryState    = "state"
	CategoryHealth   = "health"
	CategoryRequest  = "request"
	CategoryResponse = "response"
)

// topicParts is the segment count of an id-bearing topic.
const topicParts = 4

// Topics provides builders for bridge topics.
//
//	topics := mqtt.Topics{}
//	topics.State("living-room")
//	// graylogic/state/airdog/living-room
type Topics struct{}

func (Topics) build(category, id string) string {
	return fmt.Sprintf("%s/%s/%s/%s", TopicPrefix, category, Protocol, id)
}

// Command returns the topic commands for a device arrive on.
//
// Example: graylogic/command/airdog/living-room
func (t Topics) Command(deviceID string) string { return t.build(CategoryCommand, deviceID) }

// Ack returns the topic command acknowledgements are published on.
//
// Example: graylogic/ack/airdog/living-room
func (t Topics) Ack(deviceID string) string { return t.build(CategoryAck, deviceID) }

// State returns the retained state topic for a device.
//
// Example: graylogic/state/airdog/living-room
func (t Topics) State(deviceID string) string { return t.build(CategoryState, deviceID) }

// Request returns the topic a request with the given id arrives on.
//
// Example: graylogic/request/airdog/req-123
func (t Topics) Request(requestID string) string { return t.build(CategoryRequest, requestID) }

// Response returns the topic the answer to a request is published on.
//
// Example: graylogic/response/airdog/req-123
func (t Topics) Response(requestID string) string { return t.build(CategoryResponse, requestID) }

// Health returns the retained bridge health topic. It also carries the
// Last Will message.
//
// Example: graylogic/health/airdog
func (Topics) Health() string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefix, CategoryHealth, Protocol)
}

// AllCommands matches commands for every device.
//
// Pattern: graylogic/command/airdog/+
func (t Topics) AllCommands() string { return t.build(CategoryCommand, "+") }

// AllRequests matches every request.
//
// Pattern: graylogic/request/airdog/+
func (t Topics) AllRequests() string { return t.build(CategoryRequest, "+") }

// AllStates matches state updates for every device.
//
// Pattern: graylogic/state/airdog/+
func (t Topics) AllStates() string { return t.build(CategoryState, "+") }

// ParseTopic splits an id-bearing topic into its category and id.
// It returns ok=false for anything outside this bridge's namespace.
func ParseTopic(topic string) (category, id string, ok bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != topicParts || parts[0] != TopicPrefix || parts[2] != Protocol || parts[3] == "" {
		return "", "", false
	}
	return parts[1], parts[3], true
}

package topic

import (
	"errors"
	"fmt"
	"strings"
)

// Constants defining the standard topic segments.
// They are the contract between the orchestrator and the control plane.
const (
	// SuffixCommand carries commands to the control plane.
	// Structure: {root}/command/{resourceID}
	SuffixCommand = "command"

	// SuffixResult carries correlated command results back to the orchestrator.
	// Structure: {root}/result/{resourceID}
	SuffixResult = "result"

	// SuffixStatus carries unsolicited status pushes for a resource.
	// Structure: {root}/status/{resourceID}
	SuffixStatus = "status"
)

// TopicBuilder encapsulates the logic for constructing MQTT topic strings.
type TopicBuilder struct {
	// root is the base namespace for all topics (e.g., "cluster/v1").
	root string
}

// NewTopicBuilder creates a new instance of TopicBuilder with the specified root namespace.
func NewTopicBuilder(root string) *TopicBuilder {
	return &TopicBuilder{root: strings.TrimSuffix(root, "/")}
}

// Command returns the topic for sending a command to a specific resource.
func (b *TopicBuilder) Command(resourceID string) string {
	return b.build(SuffixCommand, resourceID)
}

// Result returns the topic a resource's results are published on.
func (b *TopicBuilder) Result(resourceID string) string {
	return b.build(SuffixResult, resourceID)
}

// ResultWildcard returns the filter covering the results of every resource.
// Result: {root}/result/+
func (b *TopicBuilder) ResultWildcard() string {
	return b.build(SuffixResult, Wildcard)
}

// Status returns the topic a resource's unsolicited status is published on.
func (b *TopicBuilder) Status(resourceID string) string {
	return b.build(SuffixStatus, resourceID)
}

// StatusWildcard returns the filter covering the status pushes of every resource.
// Result: {root}/status/+
func (b *TopicBuilder) StatusWildcard() string {
	return b.build(SuffixStatus, Wildcard)
}

// ResourceID extracts the resource identifier from a topic built by b.
// ok is false when the topic is outside the builder's namespace.
func (b *TopicBuilder) ResourceID(topic string) (suffix, id string, ok bool) {
	rest, found := strings.CutPrefix(topic, b.root+"/")
	if !found {
		return "", "", false
	}
	suffix, id, found = strings.Cut(rest, "/")
	if !found || id == "" || strings.Contains(id, "/") {
		return "", "", false
	}
	return suffix, id, true
}

// ValidateSegment reports whether id can be used as a single topic level.
// Separators and wildcards would route the message to another topic or make
// the broker reject the publish.
func ValidateSegment(id string) error {
	switch {
	case id == "":
		return errors.New("empty topic level")
	case strings.ContainsAny(id, "/"+Wildcard+MultiWildcard+"\x00"):
		return fmt.Errorf("topic level %q contains '/', '+', '#' or NUL", id)
	}
	return nil
}

// build constructs the final topic string.
// Pattern: {root}/{suffix}/{identifier}
func (b *TopicBuilder) build(suffix, id string) string {
	return fmt.Sprintf("%s/%s/%s", b.root, suffix, id)
}

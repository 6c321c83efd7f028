package parse

import (
	"fmt"
	"strconv"
	"strings"
)

// ParsedTopic holds the fields extracted from a sensor status topic.
type ParsedTopic struct {
	City   string
	SpotID int
}

// ParseTopic extracts the city and spot id from a topic of the form
// parking/<city>/<spot-id>/status.
func ParseTopic(topic string) (ParsedTopic, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != "parking" || parts[3] != "status" {
		return ParsedTopic{}, fmt.Errorf("topic %q does not match parking/<city>/<spot-id>/status", topic)
	}

	spotID, err := strconv.Atoi(parts[2])
	if err != nil || spotID < 0 {
		return ParsedTopic{}, fmt.Errorf("invalid spot id %q in topic %q", parts[2], topic)
	}

	return ParsedTopic{City: parts[1], SpotID: spotID}, nil
}

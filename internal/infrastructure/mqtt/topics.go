package mqtt

import (
	"fmt"
	"strings"
)

// maxTopicLength is the longest topic the protocol can encode.
const maxTopicLength = 65535

// ValidateTopic checks a topic name used for publishing.
//
// Topic names must be non-empty UTF-8 strings without wildcards or NUL
// characters.
func ValidateTopic(topic string) error {
	if err := validateCommon(topic); err != nil {
		return err
	}
	if strings.ContainsAny(topic, "+#") {
		return fmt.Errorf("%w: wildcards not allowed in topic name %q", ErrInvalidTopic, topic)
	}
	return nil
}

// ValidateFilter checks a topic filter used for subscribing.
//
// The multi-level wildcard # must be the last level and the single-level
// wildcard + must occupy a whole level:
//
//	sensors/+/temp   valid
//	sensors/#        valid
//	sensors/te+mp    invalid
//	sensors/#/temp   invalid
func ValidateFilter(filter string) error {
	if err := validateCommon(filter); err != nil {
		return err
	}

	levels := strings.Split(filter, "/")
	for i, level := range levels {
		if strings.Contains(level, "#") && (level != "#" || i != len(levels)-1) {
			return fmt.Errorf("%w: # must be the last level in %q", ErrInvalidTopic, filter)
		}
		if strings.Contains(level, "+") && level != "+" {
			return fmt.Errorf("%w: + must occupy a whole level in %q", ErrInvalidTopic, filter)
		}
	}
	return nil
}

func validateCommon(s string) error {
	switch {
	case s == "":
		return fmt.Errorf("%w: empty", ErrInvalidTopic)
	case len(s) > maxTopicLength:
		return fmt.Errorf("%w: length %d exceeds %d bytes", ErrInvalidTopic, len(s), maxTopicLength)
	case strings.ContainsRune(s, 0):
		return fmt.Errorf("%w: contains NUL character", ErrInvalidTopic)
	}
	return nil
}

package mqtt

import "fmt"

func TopicSessionCommands(prefix string) string {
	return fmt.Sprintf("%s/session/+/command", prefix)
}

func TopicSessionHypotheses(prefix string) string {
	return fmt.Sprintf("%s/session/+/hypothesis", prefix)
}

func TopicCommand(prefix, sessionID string) string {
	return fmt.Sprintf("%s/session/%s/command", prefix, sessionID)
}

func TopicHypothesis(prefix, sessionID string) string {
	return fmt.Sprintf("%s/session/%s/hypothesis", prefix, sessionID)
}

func TopicAct(prefix, sessionID string) string {
	return fmt.Sprintf("%s/session/%s/act", prefix, sessionID)
}

func TopicEvent(prefix, sessionID string) string {
	return fmt.Sprintf("%s/session/%s/event", prefix, sessionID)
}

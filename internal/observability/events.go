package observability

// EventEnvelope wraps every event published to the sync event exchange.
type EventEnvelope struct {
	EventType string      `json:"event_type"`
	EventName string      `json:"event_name"`
	Payload   interface{} `json:"payload"`
}

// Routing keys on the sync event exchange.
const (
	RoutingKeyWS       = "sync_events.ws"
	RoutingKeyMessages = "sync_events.messages"
)

func BuildHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}

package transport

import (
	"encoding/json"
)

// envelopeSource identifies this orchestrator in outgoing request metadata.
const envelopeSource = "dispatch"

// requestEnvelope is the wire format sent to agents on both paths.
type requestEnvelope struct {
	Type     string          `json:"type"`
	Payload  requestPayload  `json:"payload"`
	Metadata requestMetadata `json:"metadata"`
}

type requestPayload struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
}

type requestMetadata struct {
	Source    string `json:"source"`
	AgentName string `json:"agent_name"`
}

// newRequestEnvelope builds the standard request envelope for an agent call.
func newRequestEnvelope(agentID, message, conversationID string) requestEnvelope {
	return requestEnvelope{
		Type: "request",
		Payload: requestPayload{
			Message:        message,
			ConversationID: conversationID,
		},
		Metadata: requestMetadata{
			Source:    envelopeSource,
			AgentName: agentID,
		},
	}
}

// responseEnvelope is the raw inbound envelope before shape validation.
type responseEnvelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type responsePayload struct {
	Text *string `json:"text"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// decodeResponse validates an inbound envelope against the two known shapes
// and fails closed on anything else. A success envelope must carry a payload
// with a text field; an empty text value is still success. An error envelope
// and every unknown shape yield a protocol CallError.
func decodeResponse(data []byte) (string, *CallError) {
	var env responseEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", newCallError(ErrorKindProtocol, "malformed envelope: %v", err)
	}

	switch env.Type {
	case "response":
		if len(env.Payload) == 0 {
			return "", newCallError(ErrorKindProtocol, "response envelope missing payload")
		}
		var payload responsePayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return "", newCallError(ErrorKindProtocol, "malformed response payload: %v", err)
		}
		if payload.Text == nil {
			return "", newCallError(ErrorKindProtocol, "response payload missing text")
		}
		return *payload.Text, nil

	case "error":
		var payload errorPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil || payload.Message == "" {
			return "", newCallError(ErrorKindProtocol, "agent returned error envelope")
		}
		return "", newCallError(ErrorKindProtocol, "agent returned error: %s", payload.Message)

	default:
		return "", newCallError(ErrorKindProtocol, "unexpected envelope type %q", env.Type)
	}
}

// encodeRequest marshals the request envelope.
func encodeRequest(env requestEnvelope) ([]byte, *CallError) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, newCallError(ErrorKindProtocol, "encode request: %v", err)
	}
	return data, nil
}

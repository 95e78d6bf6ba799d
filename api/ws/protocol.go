package ws

import (
	"encoding/json"

	"github.com/mevsgame/fitgd-sub006/session"
)

// Request is the mutation envelope replicas send to the authority. Payload
// holds the operation-specific fields.
type Request struct {
	RequestID   string          `json:"requestId"`
	CharacterID int64           `json:"characterId"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// Response acknowledges a Request. Data carries operation results (query
// handlers and turn snapshots); it is omitted on failure.
type Response struct {
	RequestID string      `json:"requestId"`
	Success   bool        `json:"success"`
	Error     string      `json:"error,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

// respond sends the typed acknowledgement for a request back on the session.
func respond(s *session.Session, req Request, data interface{}, err error) {
	resp := Response{RequestID: req.RequestID, Success: err == nil, Data: data}
	if err != nil {
		resp.Error = err.Error()
		resp.Data = nil
	}
	payload, merr := json.Marshal(resp)
	if merr != nil {
		return
	}
	s.Send(&session.Packet{Type: "response", Payload: payload})
}

// decodeRequest unmarshals the outer request envelope.
func decodeRequest(raw json.RawMessage) (Request, error) {
	var req Request
	err := json.Unmarshal(raw, &req)
	return req, err
}

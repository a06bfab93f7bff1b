package gateway

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/termwork/tasksync/internal/schema"
)

// Wire envelope:
//
//	request:  {"id":"<uuid>","method":"claim","params":{"taskId":16,"userId":"ann"}}
//	response: {"id":"<uuid>","result":...}
//	          {"id":"<uuid>","error":{"kind":"rejected","message":"..."}}

// Param keys.
const (
	paramTaskID     = "taskId"
	paramUserID     = "userId"
	paramTargetID   = "targetUserId"
	paramStatuses   = "statuses"
	paramLocale     = "locale"
	paramVars       = "vars"
	paramCandidates = "candidates"
	paramProcess    = "processName"
	paramParams     = "params"
	paramContentID  = "contentId"
)

func encodeRequest(id, method string, params map[string]any) ([]byte, error) {
	msg := []byte(`{}`)
	var err error
	if msg, err = sjson.SetBytes(msg, "id", id); err != nil {
		return nil, err
	}
	if msg, err = sjson.SetBytes(msg, "method", method); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal params: %w", err)
	}
	return sjson.SetRawBytes(msg, "params", raw)
}

func encodeResult(id string, result any) ([]byte, error) {
	msg, err := sjson.SetBytes([]byte(`{}`), "id", id)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return sjson.SetRawBytes(msg, "result", []byte("null"))
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return sjson.SetRawBytes(msg, "result", raw)
}

func encodeError(id string, kind Kind, message string) []byte {
	msg, _ := sjson.SetBytes([]byte(`{}`), "id", id)
	msg, _ = sjson.SetBytes(msg, "error.kind", string(kind))
	msg, _ = sjson.SetBytes(msg, "error.message", message)
	return msg
}

// decodeResponse returns the error carried by a response or unmarshals its
// result into out.
func decodeResponse(op string, data []byte, out any) error {
	if e := gjson.GetBytes(data, "error"); e.Exists() {
		return &RemoteError{
			Op:      op,
			Kind:    ParseKind(e.Get("kind").String()),
			Message: e.Get("message").String(),
		}
	}
	result := gjson.GetBytes(data, "result")
	if !result.Exists() {
		return Errorf(op, KindProtocol, "response carries neither result nor error")
	}
	if out == nil || result.Type == gjson.Null {
		return nil
	}
	if err := json.Unmarshal([]byte(result.Raw), out); err != nil {
		return Wrap(op, KindProtocol, err)
	}
	return nil
}

func stringsParam(p gjson.Result, key string) []string {
	var out []string
	for _, v := range p.Get(key).Array() {
		out = append(out, v.String())
	}
	return out
}

func varsParam(p gjson.Result) (schema.Variables, error) {
	raw := p.Get(paramVars)
	if !raw.Exists() || raw.Type == gjson.Null {
		return nil, nil
	}
	var vars schema.Variables
	if err := json.Unmarshal([]byte(raw.Raw), &vars); err != nil {
		return nil, err
	}
	return vars, nil
}

func mapParam(p gjson.Result, key string) (map[string]any, error) {
	raw := p.Get(key)
	if !raw.Exists() || raw.Type == gjson.Null {
		return map[string]any{}, nil
	}
	out := map[string]any{}
	dec := json.NewDecoder(strings.NewReader(raw.Raw))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

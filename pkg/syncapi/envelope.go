package syncapi

import "encoding/json"

// envelope is the outer shape of every remote API response: {success, data,
// meta}. On success, data carries the endpoint-specific payload; on failure
// the body is re-read by the caller as plain text for APIError.Body.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Meta    json.RawMessage `json:"meta"`
}

// syncResult is the sendEvents outcome. Older server builds reply with the
// legacy {synced, queued} pair instead of {processed, failed}; unmarshalInto
// resolves whichever the server actually sent into the canonical fields.
type syncResult struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

type syncResultWire struct {
	Processed *int `json:"processed"`
	Failed    *int `json:"failed"`
	Synced    *int `json:"synced"`
	Queued    *int `json:"queued"`
}

func (r *syncResult) UnmarshalJSON(b []byte) error {
	var w syncResultWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	switch {
	case w.Processed != nil || w.Failed != nil:
		if w.Processed != nil {
			r.Processed = *w.Processed
		}
		if w.Failed != nil {
			r.Failed = *w.Failed
		}
	case w.Synced != nil || w.Queued != nil:
		if w.Synced != nil {
			r.Processed = *w.Synced
		}
		if w.Queued != nil {
			r.Failed = *w.Queued
		}
	}
	return nil
}

func unmarshalData(env *envelope, out any) error {
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

package livy

import (
	"encoding/json"
	"fmt"
)

// flexID tolerates the id field arriving as a JSON string (session ids are
// UUIDs) or a number (statement ids are integers).
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		*f = flexID(n.String())
		return nil
	}
	return fmt.Errorf("id is neither string nor number: %s", b)
}

// sessionStatus is the body of GET /sessions/{id} (and the create response,
// which carries at least the id).
type sessionStatus struct {
	ID       flexID       `json:"id"`
	State    SessionState `json:"state"`
	LivyInfo struct {
		CurrentState EngineState `json:"currentState"`
		ErrorMessage string      `json:"errorMessage"`
	} `json:"livyInfo"`
}

// statementStatus is the body of GET /sessions/{id}/statements/{id} (and
// the submit response, which carries at least the id).
type statementStatus struct {
	ID     flexID         `json:"id"`
	State  StatementState `json:"state"`
	Output struct {
		Status    string                     `json:"status"`
		Data      map[string]json.RawMessage `json:"data"`
		EValue    string                     `json:"evalue"`
		Traceback []string                   `json:"traceback"`
	} `json:"output"`
}

// Field describes one result column.
type Field struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

// ResultSet holds the decoded rows and schema of one completed statement.
// It is owned by the cursor that produced it and replaced wholesale on the
// next execute.
type ResultSet struct {
	Rows   [][]any
	Schema []Field
}

// jsonPayload is the statement result under output.data["application/json"].
type jsonPayload struct {
	Data   [][]any `json:"data"`
	Schema struct {
		Fields []Field `json:"fields"`
	} `json:"schema"`
}

// decodeResult turns a completed (available) statement into a ResultSet.
// A payload without rows or schema is a legitimate zero-row result.
func decodeResult(st *statementStatus) (*ResultSet, error) {
	if st.Output.Status != "ok" {
		return nil, fmt.Errorf("%w: error while executing query: %s", ErrStatementFailed, st.Output.EValue)
	}

	rs := &ResultSet{Rows: [][]any{}, Schema: []Field{}}
	raw, ok := st.Output.Data["application/json"]
	if !ok || len(raw) == 0 {
		return rs, nil
	}

	var payload jsonPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: decoding statement payload: %v", ErrMalformedResponse, err)
	}
	if payload.Data != nil {
		rs.Rows = payload.Data
	}
	if payload.Schema.Fields != nil {
		rs.Schema = payload.Schema.Fields
	}
	return rs, nil
}

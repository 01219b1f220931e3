package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseClientMessageControl(t *testing.T) {
	raw := []byte(`{"type":"client_control","session_id":" s1 ","action":"Snapshot"}`)
	msg, err := ParseClientMessage(raw)
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}

	control, ok := msg.(ClientControl)
	if !ok {
		t.Fatalf("message type = %T, want ClientControl", msg)
	}
	if control.SessionID != " s1 " || control.Action != ActionSnapshot {
		t.Fatalf("unexpected client control: %+v", control)
	}
}

func TestParseClientMessageComplete(t *testing.T) {
	msg, err := ParseClientMessage([]byte(`{"type":"client_control","action":"complete","task_id":"t1"}`))
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}
	control := msg.(ClientControl)
	if control.TaskID != "t1" || control.SessionID != "" {
		t.Fatalf("unexpected client control: %+v", control)
	}

	if _, err := ParseClientMessage([]byte(`{"type":"client_control","action":"complete"}`)); err == nil {
		t.Fatalf("complete without task_id accepted")
	}
	if _, err := ParseClientMessage([]byte(`{"type":"client_control","action":"complete","task_id":"  "}`)); err == nil {
		t.Fatalf("complete with blank task_id accepted")
	}
}

func TestParseClientMessageRejectsUnknownAction(t *testing.T) {
	if _, err := ParseClientMessage([]byte(`{"type":"client_control","action":"launch"}`)); err == nil {
		t.Fatalf("unknown action accepted")
	}
}

func TestParseClientMessageRejectsUnknownType(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"wat"}`))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("error = %v, want ErrUnsupportedType", err)
	}
}

func TestParseClientMessageRejectsInvalidJSON(t *testing.T) {
	if _, err := ParseClientMessage([]byte(`{"type":`)); err == nil {
		t.Fatalf("invalid json accepted")
	}
}

func TestTaskSnapshotEncodesEmptyTasks(t *testing.T) {
	raw, err := json.Marshal(TaskSnapshot{Type: TypeTaskSnapshot, SessionID: "s1", Tasks: []TaskView{}})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `{"type":"task_snapshot","session_id":"s1","total_tasks":0,"tasks":[]}`
	if string(raw) != want {
		t.Fatalf("Marshal() = %s, want %s", raw, want)
	}
}

package id_test

import (
	"strings"
	"testing"

	"github.com/Engineer-s-Edge/enginedge-core-sub005/id"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		newFn  func() id.ID
		prefix string
	}{
		{"RequestID", id.NewRequestID, "req_"},
		{"OrchestrationID", id.NewOrchestrationID, "oreq_"},
		{"AssignmentID", id.NewAssignmentID, "asg_"},
		{"WorkerID", id.NewWorkerID, "wkr_"},
		{"MessageID", id.NewMessageID, "msg_"},
		{"ResponseID", id.NewResponseID, "resp_"},
		{"EventID", id.NewEventID, "evt_"},
		{"DeadLetterID", id.NewDeadLetterID, "dlq_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.newFn().String()
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("expected prefix %q, got %q", tt.prefix, got)
			}
		})
	}
}

func TestNew(t *testing.T) {
	i := id.New(id.PrefixRequest)
	if i.IsNil() {
		t.Fatal("expected non-nil ID")
	}
	if i.Prefix() != id.PrefixRequest {
		t.Errorf("expected prefix %q, got %q", id.PrefixRequest, i.Prefix())
	}
}

func TestParseRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		newFn   func() id.ID
		parseFn func(string) (id.ID, error)
	}{
		{"RequestID", id.NewRequestID, id.ParseRequestID},
		{"OrchestrationID", id.NewOrchestrationID, id.ParseOrchestrationID},
		{"AssignmentID", id.NewAssignmentID, id.ParseAssignmentID},
		{"WorkerID", id.NewWorkerID, id.ParseWorkerID},
		{"MessageID", id.NewMessageID, id.ParseMessageID},
		{"ResponseID", id.NewResponseID, id.ParseResponseID},
		{"EventID", id.NewEventID, id.ParseEventID},
		{"DeadLetterID", id.NewDeadLetterID, id.ParseDeadLetterID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := tt.newFn()
			parsed, err := tt.parseFn(original.String())
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if parsed.String() != original.String() {
				t.Errorf("round-trip mismatch: %q != %q", parsed.String(), original.String())
			}
		})
	}
}

func TestCrossTypeRejection(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		parseFn func(string) (id.ID, error)
	}{
		{"ParseRequestID rejects oreq_", id.NewOrchestrationID().String(), id.ParseRequestID},
		{"ParseOrchestrationID rejects asg_", id.NewAssignmentID().String(), id.ParseOrchestrationID},
		{"ParseAssignmentID rejects wkr_", id.NewWorkerID().String(), id.ParseAssignmentID},
		{"ParseWorkerID rejects msg_", id.NewMessageID().String(), id.ParseWorkerID},
		{"ParseMessageID rejects resp_", id.NewResponseID().String(), id.ParseMessageID},
		{"ParseResponseID rejects evt_", id.NewEventID().String(), id.ParseResponseID},
		{"ParseEventID rejects dlq_", id.NewDeadLetterID().String(), id.ParseEventID},
		{"ParseDeadLetterID rejects req_", id.NewRequestID().String(), id.ParseDeadLetterID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.parseFn(tt.input)
			if err == nil {
				t.Errorf("expected error for cross-type parse of %q, got nil", tt.input)
			}
		})
	}
}

func TestParseAny(t *testing.T) {
	ids := []id.ID{
		id.NewRequestID(),
		id.NewOrchestrationID(),
		id.NewAssignmentID(),
		id.NewWorkerID(),
		id.NewMessageID(),
		id.NewResponseID(),
		id.NewEventID(),
		id.NewDeadLetterID(),
	}

	for _, i := range ids {
		t.Run(i.String(), func(t *testing.T) {
			parsed, err := id.ParseAny(i.String())
			if err != nil {
				t.Fatalf("ParseAny(%q) failed: %v", i.String(), err)
			}
			if parsed.String() != i.String() {
				t.Errorf("round-trip mismatch: %q != %q", parsed.String(), i.String())
			}
		})
	}
}

func TestParseWithPrefix(t *testing.T) {
	i := id.NewRequestID()
	parsed, err := id.ParseWithPrefix(i.String(), id.PrefixRequest)
	if err != nil {
		t.Fatalf("ParseWithPrefix failed: %v", err)
	}
	if parsed.String() != i.String() {
		t.Errorf("mismatch: %q != %q", parsed.String(), i.String())
	}

	_, err = id.ParseWithPrefix(i.String(), id.PrefixWorker)
	if err == nil {
		t.Error("expected error for wrong prefix")
	}
}

func TestParseEmpty(t *testing.T) {
	_, err := id.Parse("")
	if err == nil {
		t.Error("expected error for empty string")
	}
}

func TestNilID(t *testing.T) {
	var i id.ID
	if !i.IsNil() {
		t.Error("zero-value ID should be nil")
	}
	if i.String() != "" {
		t.Errorf("expected empty string, got %q", i.String())
	}
	if i.Prefix() != "" {
		t.Errorf("expected empty prefix, got %q", i.Prefix())
	}
}

func TestMarshalUnmarshalText(t *testing.T) {
	original := id.NewRequestID()
	data, err := original.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText failed: %v", err)
	}

	var restored id.ID
	if unmarshalErr := restored.UnmarshalText(data); unmarshalErr != nil {
		t.Fatalf("UnmarshalText failed: %v", unmarshalErr)
	}
	if restored.String() != original.String() {
		t.Errorf("mismatch: %q != %q", restored.String(), original.String())
	}

	// Nil round-trip.
	var nilID id.ID
	data, err = nilID.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText(nil) failed: %v", err)
	}
	var restored2 id.ID
	if err := restored2.UnmarshalText(data); err != nil {
		t.Fatalf("UnmarshalText(nil) failed: %v", err)
	}
	if !restored2.IsNil() {
		t.Error("expected nil after round-trip of nil ID")
	}
}

func TestValueScan(t *testing.T) {
	original := id.NewWorkerID()
	val, err := original.Value()
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}

	var scanned id.ID
	if scanErr := scanned.Scan(val); scanErr != nil {
		t.Fatalf("Scan failed: %v", scanErr)
	}
	if scanned.String() != original.String() {
		t.Errorf("mismatch: %q != %q", scanned.String(), original.String())
	}

	// Nil round-trip.
	var nilID id.ID
	val, err = nilID.Value()
	if err != nil {
		t.Fatalf("Value(nil) failed: %v", err)
	}
	if val != nil {
		t.Errorf("expected nil value for nil ID, got %v", val)
	}

	var scanned2 id.ID
	if err := scanned2.Scan(nil); err != nil {
		t.Fatalf("Scan(nil) failed: %v", err)
	}
	if !scanned2.IsNil() {
		t.Error("expected nil after scan of nil")
	}
}

func TestUniqueness(t *testing.T) {
	a := id.NewRequestID()
	b := id.NewRequestID()
	if a.String() == b.String() {
		t.Errorf("two consecutive NewRequestID() calls returned the same ID: %q", a.String())
	}
}

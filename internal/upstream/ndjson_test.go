package upstream

import "testing"

func TestReduceOllamaNDJSONReturnsFirstDoneRecord(t *testing.T) {
	body := []byte("{\"done\":false,\"response\":\"a\"}\n{\"done\":false,\"response\":\"b\"}\n{\"done\":true,\"response\":\"\"}")
	got, err := ReduceOllamaNDJSON(nil, body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `{"done":true,"response":""}`
	if string(got) != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestReduceOllamaNDJSONReturnsLastRecordIfNoneDone(t *testing.T) {
	body := []byte("{\"done\":false,\"response\":\"a\"}\n{\"done\":false,\"response\":\"b\"}")
	got, err := ReduceOllamaNDJSON(nil, body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `{"done":false,"response":"b"}`
	if string(got) != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestReduceOllamaNDJSONSkipsBlankAndBadLines(t *testing.T) {
	body := []byte("\n{not json}\n{\"done\":true,\"response\":\"ok\"}\n")
	got, err := ReduceOllamaNDJSON(nil, body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `{"done":true,"response":"ok"}`
	if string(got) != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

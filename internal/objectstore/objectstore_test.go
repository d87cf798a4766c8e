package objectstore

import "testing"

func TestTaskResultKey(t *testing.T) {
	got := TaskResultKey("abc-123")
	want := "tasks/abc-123/callback.json"
	if got != want {
		t.Errorf("TaskResultKey = %q, want %q", got, want)
	}
}

func TestStoreObjectKeyPrefix(t *testing.T) {
	s := &Store{prefix: "staging"}
	got := s.objectKey(TaskResultKey("t1"))
	want := "staging/tasks/t1/callback.json"
	if got != want {
		t.Errorf("objectKey = %q, want %q", got, want)
	}
}

func TestStoreObjectKeyNoPrefix(t *testing.T) {
	s := &Store{}
	got := s.objectKey(TaskResultKey("t1"))
	want := "tasks/t1/callback.json"
	if got != want {
		t.Errorf("objectKey = %q, want %q", got, want)
	}
}

func TestNewRejectsEmptyBucket(t *testing.T) {
	if _, err := New(nil, &StoreConfig{Region: "us-east-1"}); err == nil {
		t.Fatal("expected error for empty bucket")
	}
}

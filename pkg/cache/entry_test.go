package cache

import "testing"

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateMissing, "missing"},
		{StateDownloading, "downloading"},
		{StateCached, "cached"},
		{StateFailed, "failed"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestObject_Size(t *testing.T) {
	obj := &Object{
		Key:  Key{ProductID: "p1", Folder: "detail", Filename: "a.jpg"},
		Data: []byte("abcdef"),
	}
	if obj.Size() != 6 {
		t.Errorf("Size() = %d, want 6", obj.Size())
	}
}

package core

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"mindhelper.ai/backend/internal/store"
)

func makeMessages(n int) []store.Message {
	msgs := make([]store.Message, n)
	for i := range msgs {
		role := store.RoleUser
		if i%2 == 1 {
			role = store.RoleModel
		}
		msgs[i] = store.Message{ID: fmt.Sprintf("m%d", i), Role: role, Text: fmt.Sprintf("text %d", i)}
	}
	return msgs
}

func TestWindowHistory(t *testing.T) {
	tests := []struct {
		name string
		in   []store.Message
		want []store.Message
	}{
		{"fifteen keeps last ten", makeMessages(15), makeMessages(15)[5:]},
		{"three kept whole", makeMessages(3), makeMessages(3)},
		{"exactly ten", makeMessages(10), makeMessages(10)},
		{"empty", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, WindowHistory(tt.in)); diff != "" {
				t.Errorf("WindowHistory() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

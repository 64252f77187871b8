package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsEmergency(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"death wish", "Я не хочу жить", true},
		{"neutral", "Хороший день", false},
		{"empty", "", false},
		{"upper case", "СУИЦИД", true},
		{"mixed case", "Думаю Покончить со всем", true},
		{"embedded in longer word", "насмерть устал", true},
		{"self harm slang", "опять думаю про селфхарм", true},
		{"violence", "дома насилие", true},
		{"latin text", "I am fine, thanks", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsEmergency(tt.text))
		})
	}
}

func TestIsEmergencyEveryKeyword(t *testing.T) {
	for _, keyword := range crisisKeywords {
		assert.True(t, IsEmergency("... "+keyword+" ..."), keyword)
	}
}

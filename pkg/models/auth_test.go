package models

import "testing"

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"flat", `{"message":"Login denied"}`, "Login denied"},
		{"nested", `{"success":false,"data":{"message":"Token expired"}}`, "Token expired"},
		{"neither", `{"success":false}`, ""},
		{"not json", `<html>gateway timeout</html>`, ""},
		{"empty", ``, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorMessage([]byte(tt.body)); got != tt.want {
				t.Errorf("ErrorMessage(%q) = %q, want %q", tt.body, got, tt.want)
			}
		})
	}
}

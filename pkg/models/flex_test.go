package models

import (
	"encoding/json"
	"testing"
)

func TestFlexIntUnmarshal(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int64
		wantErr bool
	}{
		{"number", `7`, 7, false},
		{"quoted number", `"7"`, 7, false},
		{"zero", `0`, 0, false},
		{"quoted zero", `"0"`, 0, false},
		{"negative", `-3`, -3, false},
		{"null", `null`, 0, false},
		{"empty string", `""`, 0, false},
		{"garbage", `"seven"`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f FlexInt
			err := json.Unmarshal([]byte(tt.input), &f)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Unmarshal(%s) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err == nil && f.Int64() != tt.want {
				t.Errorf("Unmarshal(%s) = %d, want %d", tt.input, f.Int64(), tt.want)
			}
		})
	}
}

func TestFlexIntInStruct(t *testing.T) {
	var v struct {
		Count FlexInt `json:"count"`
	}
	if err := json.Unmarshal([]byte(`{"count":"42"}`), &v); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if v.Count.Int() != 42 {
		t.Errorf("Count = %d, want 42", v.Count.Int())
	}
}

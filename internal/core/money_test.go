package core

import (
	"testing"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"12.34", "12.34", false},
		{"12,34", "12.34", false},
		{" 99 ", "99", false},
		{"0.01", "0.01", false},
		{"", "", true},
		{"   ", "", true},
		{"0", "", true},
		{"-5", "", true},
		{"+5", "", true},
		{"abc", "", true},
		{"1.2.3", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseAmount(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseAmount(%q) = %v, want error", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAmount(%q) error = %v", tt.input, err)
			}
			if got.String() != tt.want {
				t.Errorf("ParseAmount(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

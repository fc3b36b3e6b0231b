package db

import (
	"errors"
	"testing"
)

func TestParseID(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		want    int64
		wantErr bool
	}{
		{name: "valid id", value: "42", want: 42},
		{name: "large id", value: "9007199254740993", want: 9007199254740993},
		{name: "zero rejected", value: "0", wantErr: true},
		{name: "negative rejected", value: "-3", wantErr: true},
		{name: "non-numeric rejected", value: "64f1c0ffee", wantErr: true},
		{name: "empty rejected", value: "", wantErr: true},
		{name: "trailing garbage rejected", value: "42x", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseID("account id", tt.value)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseID(%q) expected error, got %d", tt.value, got)
				}
				var verr *ValidationError
				if !errors.As(err, &verr) {
					t.Errorf("ParseID(%q) error is %T, want *ValidationError", tt.value, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseID(%q) unexpected error: %v", tt.value, err)
			}
			if got != tt.want {
				t.Errorf("ParseID(%q) = %d, want %d", tt.value, got, tt.want)
			}
		})
	}
}

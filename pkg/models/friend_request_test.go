package models

import "testing"

func TestParseRequestStatus(t *testing.T) {
	tests := []struct {
		input  string
		want   RequestStatus
		wantOK bool
	}{
		{"sent", RequestStatusSent, true},
		{"accepted", RequestStatusAccepted, true},
		{"rejected", RequestStatusRejected, true},
		{"", "", false},
		{"pending", "", false},
		{"ACCEPTED", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseRequestStatus(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("ParseRequestStatus(%q) ok = %v, want %v", tt.input, ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("ParseRequestStatus(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestRequestStatus_LiveAndTerminal(t *testing.T) {
	tests := []struct {
		status   RequestStatus
		live     bool
		terminal bool
	}{
		{RequestStatusSent, true, false},
		{RequestStatusAccepted, true, true},
		{RequestStatusRejected, false, true},
	}

	for _, tt := range tests {
		if got := tt.status.IsLive(); got != tt.live {
			t.Errorf("%s.IsLive() = %v, want %v", tt.status, got, tt.live)
		}
		if got := tt.status.IsTerminal(); got != tt.terminal {
			t.Errorf("%s.IsTerminal() = %v, want %v", tt.status, got, tt.terminal)
		}
	}
}

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  Alice@Example.COM "); got != "alice@example.com" {
		t.Errorf("NormalizeEmail() = %q, want %q", got, "alice@example.com")
	}
}

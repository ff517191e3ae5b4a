package logging

import "testing"

func TestNew(t *testing.T) {
	tests := []struct {
		level   string
		debug   bool
		wantErr bool
	}{
		{"info", false, false},
		{"debug", true, false},
		{"warn", false, false},
		{"loud", false, true},
	}

	for _, tt := range tests {
		logger, err := New(tt.level, tt.debug)
		if (err != nil) != tt.wantErr {
			t.Errorf("New(%q) error = %v, wantErr %v", tt.level, err, tt.wantErr)
			continue
		}
		if logger != nil {
			logger.Sync()
		}
	}
}

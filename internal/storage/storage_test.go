package storage

import (
	"errors"
	"testing"
)

func TestIsNotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"head 404", errors.New("operation error S3: HeadObject, https response error StatusCode: 404"), true},
		{"not found", errors.New("NotFound: Not Found"), true},
		{"no such key", errors.New("NoSuchKey: The specified key does not exist"), true},
		{"access denied", errors.New("AccessDenied: Access Denied"), false},
		{"timeout", errors.New("context deadline exceeded"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNotFound(tt.err); got != tt.want {
				t.Errorf("IsNotFound(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

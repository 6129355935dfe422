package objectstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClipPrefix(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		expected string
	}{
		{
			name:     "plain source key lists its parent directory",
			key:      "uploads/user-1/file-1/video.mp4",
			expected: "uploads/user-1/file-1/",
		},
		{
			name:     "leading slash is stripped",
			key:      "/uploads/user-1/file-1/video.mp4",
			expected: "uploads/user-1/file-1/",
		},
		{
			name:     "existing prefix lists itself",
			key:      "uploads/user-1/file-1/",
			expected: "uploads/user-1/file-1/",
		},
		{
			name:     "top-level key has no parent",
			key:      "video.mp4",
			expected: "",
		},
		{
			name:     "empty key",
			key:      "",
			expected: "",
		},
		{
			name:     "double slashes are collapsed",
			key:      "uploads//user-1//video.mp4",
			expected: "uploads/user-1/",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ClipPrefix(tt.key))
		})
	}
}

func TestIsClipKey(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		expected bool
	}{
		{name: "clip suffix", key: "uploads/u/f/clip-001.mp4", expected: true},
		{name: "uppercase clip", key: "uploads/u/f/CLIP_2.mp4", expected: true},
		{name: "clip in directory name", key: "uploads/u/clips/part1.mp4", expected: true},
		{name: "source video", key: "uploads/u/f/video.mp4", expected: false},
		{name: "empty key", key: "", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsClipKey(tt.key))
		})
	}
}

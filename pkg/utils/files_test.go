package utils

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveWithin(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		baseDir string
		want    string
		wantErr bool
	}{
		{
			name:    "file within document root",
			path:    "index.html",
			baseDir: "/www",
			want:    filepath.Join("/www", "index.html"),
		},
		{
			name:    "nested file",
			path:    "img/logo.png",
			baseDir: "/www",
			want:    filepath.Join("/www", "img", "logo.png"),
		},
		{
			name:    "leading slash stays inside root",
			path:    "/a.png",
			baseDir: "/www",
			want:    filepath.Join("/www", "a.png"),
		},
		{
			name:    "dot-dot that resolves inside root",
			path:    "img/../a.png",
			baseDir: "/www",
			want:    filepath.Join("/www", "a.png"),
		},
		{
			name:    "directory traversal",
			path:    "../etc/passwd",
			baseDir: "/www",
			wantErr: true,
		},
		{
			name:    "sibling directory sharing a prefix",
			path:    "../www-private/secret",
			baseDir: "/www",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveWithin(tt.path, tt.baseDir)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrPathEscapesRoot)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

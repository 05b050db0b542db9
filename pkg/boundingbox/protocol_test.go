package boundingbox

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    Box
		wantErr bool
	}{
		{
			name:    "valid artifact",
			content: "1.0\n2.0\n3.0\n10\n20\n30\n0.5\n0.6\n0.7\n",
			want: Box{
				Translation: Vec3{1, 2, 3},
				Rotation:    Vec3{10, 20, 30},
				Scale:       Vec3{0.5, 0.6, 0.7},
			},
		},
		{
			name:    "negative and exponent notation",
			content: "-1.5\n0\n3e2\n-90\n180\n-180\n1\n1\n1",
			want: Box{
				Translation: Vec3{-1.5, 0, 300},
				Rotation:    Vec3{-90, 180, -180},
				Scale:       Vec3{1, 1, 1},
			},
		},
		{
			name:    "trailing whitespace tolerated",
			content: "1\n2\n3\n4\n5\n6\n7\n8\n9\n\n  ",
			want: Box{
				Translation: Vec3{1, 2, 3},
				Rotation:    Vec3{4, 5, 6},
				Scale:       Vec3{7, 8, 9},
			},
		},
		{
			name:    "eight values",
			content: "1\n2\n3\n4\n5\n6\n7\n8\n",
			wantErr: true,
		},
		{
			name:    "ten values",
			content: "1\n2\n3\n4\n5\n6\n7\n8\n9\n10\n",
			wantErr: true,
		},
		{
			name:    "non numeric token",
			content: "1\n2\nbogus\n4\n5\n6\n7\n8\n9\n",
			wantErr: true,
		},
		{
			name:    "empty file",
			content: "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(strings.NewReader(tt.content))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				var perr *ParseError
				if !errors.As(err, &perr) {
					t.Errorf("Parse() error = %T, want *ParseError", err)
				}
				return
			}
			if got != tt.want {
				t.Errorf("Parse() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseFileSetsPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), ArtifactName)
	if err := os.WriteFile(path, []byte("1\n2\n"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := ParseFile(path)
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("ParseFile() error = %v, want *ParseError", err)
	}
	if perr.Path != path {
		t.Errorf("ParseError.Path = %q, want %q", perr.Path, path)
	}
}

func TestValuesRoundTrip(t *testing.T) {
	values := [9]float64{1, 2, 3, 4, 5, 6, 7, 8, 9}
	box := FromValues(values)
	if got := box.Values(); got != values {
		t.Errorf("Values() = %v, want %v", got, values)
	}
}

func TestArtifactPath(t *testing.T) {
	got := ArtifactPath("/cache/Meshing/abc/mesh.obj")
	want := filepath.Join("/cache/Meshing/abc", ArtifactName)
	if got != want {
		t.Errorf("ArtifactPath() = %q, want %q", got, want)
	}
}

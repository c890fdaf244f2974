package testdata

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gocv.io/x/gocv"
)

// OverlaySize is the edge length of the fixture overlays. Each has a
// transparent border of OverlayBorder pixels around an opaque square.
const (
	OverlaySize   = 200
	OverlayBorder = 20
)

// Fixture overlay i is opaque blue 10*i+1 (finger poses) or opaque green
// 10*i+1 (digits) inside its border.
//
//go:embed overlays/right/*.png overlays/numbers/*.png
var overlaysFS embed.FS

// OverlayValue is the channel value of fixture overlay i.
func OverlayValue(i int) uint8 {
	return uint8(10*i + 1)
}

// LoadOverlay decodes one fixture overlay as BGRA. kind is "right" or
// "numbers".
func LoadOverlay(kind string, i int) (*gocv.Mat, error) {
	name := fmt.Sprintf("overlays/%s/%d.png", kind, i)
	data, err := overlaysFS.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("load overlay %s: %w", name, err)
	}

	mat, err := gocv.IMDecode(data, gocv.IMReadUnchanged)
	if err != nil {
		return nil, fmt.Errorf("decode overlay %s: %w", name, err)
	}

	return &mat, nil
}

// WriteOverlays copies the fixture overlays under dir and returns the
// finger-pose and digit directories.
func WriteOverlays(dir string) (fingerDir, digitDir string, err error) {
	err = fs.WalkDir(overlaysFS, "overlays", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		target := filepath.Join(dir, filepath.FromSlash(path))
		if d.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		data, err := overlaysFS.ReadFile(path)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, 0644)
	})
	if err != nil {
		return "", "", err
	}

	return filepath.Join(dir, "overlays", "right"), filepath.Join(dir, "overlays", "numbers"), nil
}

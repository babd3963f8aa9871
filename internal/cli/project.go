package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sai034/css-video-editor/pkg/models"
)

// loadProject reads a YAML project file into a render request. Relative
// media references are resolved against the project's directory.
func loadProject(path string) (models.RenderRequest, error) {
	var req models.RenderRequest

	data, err := os.ReadFile(path)
	if err != nil {
		return req, fmt.Errorf("failed to read project: %w", err)
	}
	if err := yaml.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("failed to parse project %s: %w", path, err)
	}

	resolveRefs(&req, filepath.Dir(path))
	return req, nil
}

func resolveRefs(req *models.RenderRequest, dir string) {
	req.Source = resolveRef(req.Source, dir)
	if req.Overlays.CoverPhoto != nil {
		req.Overlays.CoverPhoto.URL = resolveRef(req.Overlays.CoverPhoto.URL, dir)
	}
	for i := range req.Overlays.Images {
		req.Overlays.Images[i].URL = resolveRef(req.Overlays.Images[i].URL, dir)
	}
	for i := range req.Tracks {
		req.Tracks[i].URL = resolveRef(req.Tracks[i].URL, dir)
	}
}

// resolveRef leaves URLs, data URLs and absolute paths alone
func resolveRef(ref, dir string) string {
	if ref == "" || strings.Contains(ref, "://") || strings.HasPrefix(ref, "data:") || filepath.IsAbs(ref) {
		return ref
	}
	return filepath.Join(dir, ref)
}

func writeProject(path string, req models.RenderRequest) error {
	data, err := yaml.Marshal(req)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

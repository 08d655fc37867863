package translate

import (
	"encoding/base64"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"aegis/internal/gateway/registry"
	"aegis/internal/salute"
)

// maxArtifactBytes is the inline-content ceiling. Larger files are reported
// by name and size only.
const maxArtifactBytes = 1024 * 1024

// textExtensions lists extensions always treated as text regardless of the
// detected MIME type.
var textExtensions = map[string]bool{
	".py": true, ".js": true, ".ts": true, ".json": true, ".md": true,
	".sh": true, ".yaml": true, ".yml": true, ".toml": true, ".cfg": true,
	".ini": true, ".xml": true, ".html": true, ".css": true, ".go": true,
	".txt": true,
}

// CollectArtifacts reads every file in the report's modified list and builds
// wire artifacts. Unreadable files are skipped; collection is best-effort.
func CollectArtifacts(report *salute.Report) []registry.Artifact {
	if report == nil {
		return nil
	}
	var artifacts []registry.Artifact
	for _, path := range report.Location.FilesModified {
		if artifact := fileToArtifact(path); artifact != nil {
			artifacts = append(artifacts, *artifact)
		}
	}
	return artifacts
}

func fileToArtifact(path string) *registry.Artifact {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return nil
	}

	name := filepath.Base(path)
	ext := strings.ToLower(filepath.Ext(path))
	mimeType := mime.TypeByExtension(ext)
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	metadata := map[string]any{
		"mimeType": mimeType,
		"path":     path,
		"size":     info.Size(),
	}

	if info.Size() > maxArtifactBytes {
		return &registry.Artifact{
			Name: name,
			Parts: []registry.Part{{
				Type: "text",
				Text: fmt.Sprintf("File too large to inline (%d bytes): %s", info.Size(), path),
			}},
			Metadata: metadata,
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	if textExtensions[ext] || strings.HasPrefix(mimeType, "text/") {
		return &registry.Artifact{
			Name:     name,
			Parts:    []registry.Part{{Type: "text", Text: string(data)}},
			Metadata: metadata,
		}
	}

	metadata["encoding"] = "base64"
	return &registry.Artifact{
		Name:     name,
		Parts:    []registry.Part{{Type: "data", Data: base64.StdEncoding.EncodeToString(data)}},
		Metadata: metadata,
	}
}

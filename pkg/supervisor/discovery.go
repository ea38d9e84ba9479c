package supervisor

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"github.com/betterqa-sync/agent-core/pkg/observability"
)

// downloadTimeout bounds the release-zip fetch triggered by Discover when no
// local install satisfies the required binaries.
const downloadTimeout = 2 * time.Minute

// Discover resolves the directory holding the tracker binaries, trying in
// order: the persistent install dir, a development dir (a local
// "./trackers/<platform>" checkout, useful when iterating on an unreleased
// watcher build), then the bundle dir. If none satisfy every binary in
// required, it downloads downloadURL, extracts it into persistentDir,
// marks every entry executable, and strips the quarantine attribute on
// darwin.
func Discover(ctx context.Context, o11y observability.Observability, persistentDir, developmentDir, bundleDir, downloadURL string, required []string) (string, error) {
	for _, dir := range []string{persistentDir, developmentDir, bundleDir} {
		if dir == "" {
			continue
		}
		if hasAll(dir, required) {
			o11y.Logger().Info(ctx, "tracker binaries found", observability.String("dir", dir))
			return dir, nil
		}
	}

	o11y.Logger().Info(ctx, "tracker binaries missing locally, downloading release",
		observability.String("url", downloadURL), observability.String("dest", persistentDir))

	if err := downloadAndExtract(ctx, downloadURL, persistentDir); err != nil {
		return "", fmt.Errorf("supervisor: download trackers: %w", err)
	}
	if !hasAll(persistentDir, required) {
		return "", fmt.Errorf("supervisor: downloaded release at %s is missing required binaries %v", persistentDir, required)
	}
	return persistentDir, nil
}

func hasAll(dir string, required []string) bool {
	if dir == "" {
		return false
	}
	for _, name := range required {
		path := filepath.Join(dir, binaryName(name))
		if _, err := os.Stat(path); err != nil {
			return false
		}
	}
	return true
}

func binaryName(name string) string {
	if runtime.GOOS == "windows" {
		return name + ".exe"
	}
	return name
}

func downloadAndExtract(ctx context.Context, url, destDir string) error {
	ctx, cancel := context.WithTimeout(ctx, downloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch %s: http %d", url, resp.StatusCode)
	}

	tmp, err := os.CreateTemp("", "tracker-release-*.zip")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		return fmt.Errorf("write release archive: %w", err)
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return err
	}

	zr, err := zip.OpenReader(tmp.Name())
	if err != nil {
		return fmt.Errorf("open release archive: %w", err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		target := filepath.Join(destDir, filepath.Clean(f.Name))
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := extractFile(f, target); err != nil {
			return err
		}
		_ = os.Chmod(target, 0o755)
		stripQuarantine(target)
	}
	return nil
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o755)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, rc)
	return err
}

// stripQuarantine removes macOS's com.apple.quarantine extended attribute
// from a freshly downloaded binary, so Gatekeeper does not block the first
// launch. It is a best-effort no-op on any other platform or if xattr is
// unavailable.
func stripQuarantine(path string) {
	if runtime.GOOS != "darwin" {
		return
	}
	_ = exec.Command("xattr", "-d", "com.apple.quarantine", path).Run()
}

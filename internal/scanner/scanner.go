package scanner

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"inventaire-ai/internal/util"

	"go.uber.org/zap"
)

// ErrNoImages means the target resolved to a real location but nothing in
// it (or under it) is an image we can analyze.
var ErrNoImages = errors.New("no images found in target")

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

// IsImage reports whether the filename carries a supported image extension.
func IsImage(name string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(name))]
}

// Target is a resolved scan location: the directory the ledger lives in and
// the images to reconcile against it, sorted by filename.
type Target struct {
	Dir    string
	Images []string
}

// LedgerPath returns the ledger file conventionally paired with the target
// directory: <dir>/<dirname>_compteur.csv.
func (t *Target) LedgerPath() string {
	return filepath.Join(t.Dir, filepath.Base(t.Dir)+"_compteur.csv")
}

type Scanner struct {
	logger *zap.Logger
}

func New() *Scanner {
	return &Scanner{logger: util.GetLogger()}
}

// Resolve turns a user-supplied path into a scan target. It accepts a
// directory of images, a single image file, or a zip archive (which is
// extracted next to itself first). Directories with no images at the top
// level are searched for the first image-bearing subdirectory, which covers
// archives that wrap their content in a nested folder.
func (s *Scanner) Resolve(path string) (*Target, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat target %s: %w", path, err)
	}

	switch {
	case info.IsDir():
		return s.resolveDir(path)
	case strings.EqualFold(filepath.Ext(path), ".zip"):
		dir, err := s.extractZip(path)
		if err != nil {
			return nil, err
		}
		return s.resolveDir(dir)
	case IsImage(path):
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
		}
		return &Target{Dir: filepath.Dir(abs), Images: []string{abs}}, nil
	default:
		return nil, fmt.Errorf("unsupported target %s: not a directory, image or zip", path)
	}
}

func (s *Scanner) resolveDir(dir string) (*Target, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", dir, err)
	}

	images, err := ListImages(abs)
	if err != nil {
		return nil, err
	}
	if len(images) > 0 {
		util.ImagesDiscoveredTotal.Add(float64(len(images)))
		return &Target{Dir: abs, Images: images}, nil
	}

	// Descend to the first subdirectory that holds images.
	var found string
	err = filepath.WalkDir(abs, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if found != "" {
			return fs.SkipAll
		}
		if !d.IsDir() && IsImage(d.Name()) {
			found = filepath.Dir(p)
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", abs, err)
	}
	if found == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoImages, dir)
	}

	s.logger.Info("Using nested image directory", zap.String("dir", found))
	images, err = ListImages(found)
	if err != nil {
		return nil, err
	}
	util.ImagesDiscoveredTotal.Add(float64(len(images)))
	return &Target{Dir: found, Images: images}, nil
}

// ListImages returns the image files directly inside dir, sorted by name.
// Hidden files and subdirectories are skipped.
func ListImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	var images []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if IsImage(e.Name()) {
			images = append(images, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(images)
	return images, nil
}

// extractZip unpacks the archive into a directory named after it. An
// existing directory with that name is renamed aside with a timestamp so a
// re-extraction never merges old and new content.
func (s *Scanner) extractZip(path string) (string, error) {
	dest := strings.TrimSuffix(path, filepath.Ext(path))
	if _, err := os.Stat(dest); err == nil {
		backup := fmt.Sprintf("%s_backup_%s", dest, time.Now().Format("20060102_150405"))
		s.logger.Info("Backing up existing directory before extraction",
			zap.String("dir", dest), zap.String("backup", backup))
		if err := os.Rename(dest, backup); err != nil {
			return "", fmt.Errorf("failed to back up %s: %w", dest, err)
		}
	}

	r, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("failed to open archive %s: %w", path, err)
	}
	defer r.Close()

	for _, f := range r.File {
		if err := extractFile(f, dest); err != nil {
			return "", err
		}
	}
	s.logger.Info("Archive extracted", zap.String("archive", path), zap.String("dir", dest))
	return dest, nil
}

func extractFile(f *zip.File, dest string) error {
	// Reject entries that would escape the destination.
	target := filepath.Join(dest, filepath.Clean(f.Name))
	if !strings.HasPrefix(target, filepath.Clean(dest)+string(os.PathSeparator)) {
		return fmt.Errorf("archive entry %s escapes destination", f.Name)
	}

	if f.FileInfo().IsDir() {
		return os.MkdirAll(target, 0o755)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(target), err)
	}

	src, err := f.Open()
	if err != nil {
		return fmt.Errorf("failed to read archive entry %s: %w", f.Name, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode())
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", target, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("failed to extract %s: %w", f.Name, err)
	}
	return nil
}

package svt

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// CollectImages expands files and directories into the ordered list of
// images to view. Directories contribute their supported files (not
// recursively) in name order. Duplicates keep their first position.
func CollectImages(paths []string) ([]string, error) {
	var out []string
	seen := make(map[string]bool)

	for _, p := range paths {
		imgs, err := collectPath(p)
		if err != nil {
			return nil, err
		}
		for _, img := range imgs {
			key := img
			if abs, err := filepath.Abs(img); err == nil {
				key = abs
			}
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, img)
		}
	}

	if len(out) == 0 {
		return nil, ErrNoImages
	}
	return out, nil
}

func collectPath(path string) ([]string, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("path does not exist: %s: %w", path, err)
	}

	if !fi.IsDir() {
		if !IsSupportedImage(path) {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedFile, path)
		}
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", path, err)
	}
	var imgs []string
	for _, e := range entries {
		full := filepath.Join(path, e.Name())
		if e.IsDir() || !IsSupportedImage(full) {
			continue
		}
		if e.Type()&os.ModeSymlink != 0 {
			if fi, err := os.Stat(full); err != nil || fi.IsDir() {
				continue
			}
		}
		imgs = append(imgs, full)
	}
	sort.Strings(imgs)

	if len(imgs) == 0 {
		return nil, fmt.Errorf("no image files found in directory: %s", path)
	}
	return imgs, nil
}

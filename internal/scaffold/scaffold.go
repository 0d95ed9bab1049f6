// Package scaffold renders the embedded starter templates used by init
package scaffold

import (
	"embed"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/template"
)

//go:embed all:templates
var content embed.FS

// Info is the data the starter templates render with
type Info struct {
	Name string
}

// Entry renders the starter entry module to path, creating parent
// directories as needed. An existing file is never overwritten.
func Entry(path string, info Info) error {
	return render("templates/worker/index.js.tmpl", path, info)
}

// Gitignore writes the starter ignore file into root
func Gitignore(root string) error {
	return render("templates/worker/gitignore", filepath.Join(root, ".gitignore"), nil)
}

func render(src, dest string, info any) error {
	data, err := content.ReadFile(src)
	if err != nil {
		return fmt.Errorf("reading template %q: %w", src, err)
	}

	tmpl, err := template.New(filepath.Base(src)).Parse(string(data))
	if err != nil {
		return fmt.Errorf("parsing template %q: %w", src, err)
	}

	var buf strings.Builder
	if err := tmpl.Execute(&buf, info); err != nil {
		return fmt.Errorf("rendering template %q: %w", src, err)
	}

	if dir := filepath.Dir(dest); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("creating directory %q: %w", dir, err)
		}
	}

	f, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644) //nolint:gosec // G304: destination comes from the user's own init arguments
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("%s already exists", dest)
		}
		return fmt.Errorf("creating %q: %w", dest, err)
	}
	defer func() {
		_ = f.Close()
	}()

	if _, err := io.WriteString(f, buf.String()); err != nil {
		return fmt.Errorf("writing %q: %w", dest, err)
	}
	return nil
}

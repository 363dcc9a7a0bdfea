// Package store persists backup artifacts in a local directory.
package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Artifact paths relative to the backup directory.
const (
	TemplatesFile     = "templates.json"
	TemplateRulesFile = "template_rules.json"
	PolicyRulesFile   = "policy_rules.json"
	UserActionsFile   = "user_actions.json"
	GlobalListsDir    = "global_lists"
	GlobalListsFile   = GlobalListsDir + "/global_lists.json"
	ManifestFile      = "manifest.yaml"
)

var ErrInvalidListName = errors.New("list name cannot be used as a file name")

// Dir is a backup directory.
type Dir struct {
	Root string
}

func NewDir(root string) *Dir {
	return &Dir{Root: root}
}

func (d *Dir) path(name string) string {
	return filepath.Join(d.Root, filepath.FromSlash(name))
}

// WriteJSON writes v to the artifact name, indented by four spaces with
// non-ASCII text kept readable.
func (d *Dir) WriteJSON(name string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	return d.writeFile(name, buf.Bytes())
}

// ReadJSON decodes the artifact name into v.
func (d *Dir) ReadJSON(name string, v any) error {
	data, err := os.ReadFile(d.path(name))
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	return nil
}

// WriteList stores the entries of a STATIC global list in its side-car file.
func (d *Dir) WriteList(listName, content string) error {
	name, err := listFile(listName)
	if err != nil {
		return err
	}
	return d.writeFile(name, []byte(NormalizeList(content)))
}

// OpenList opens the side-car file of a STATIC global list. The caller closes it.
func (d *Dir) OpenList(listName string) (io.ReadCloser, error) {
	name, err := listFile(listName)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(d.path(name))
	if err != nil {
		return nil, fmt.Errorf("open list file: %w", err)
	}
	return f, nil
}

func (d *Dir) writeFile(name string, data []byte) error {
	p := d.path(name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", name, err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

func listFile(listName string) (string, error) {
	if listName == "" || listName == "." || listName == ".." || strings.ContainsAny(listName, `/\`) || listName == "global_lists.json" {
		return "", fmt.Errorf("%q: %w", listName, ErrInvalidListName)
	}
	return GlobalListsDir + "/" + listName, nil
}

// NormalizeList trims every line of a list file and drops blank lines.
func NormalizeList(content string) string {
	var lines []string
	lineBreak := func(r rune) bool { return r == '\n' || r == '\r' }
	for _, line := range strings.FieldsFunc(content, lineBreak) {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

package devbackend

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrIslandExists is returned by CreateIslandDir when the target folder is
// already present.
var ErrIslandExists = errors.New("island folder already exists")

// UpdateField sets key to value in the YAML mapping stored at path, keeping
// the order and comments of the other keys. The value is typed the way a
// person would write it: a number, then true/false, then a plain string.
func UpdateField(path, key, value string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	if doc.Kind == 0 {
		doc = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}}
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return fmt.Errorf("%s: root is not a mapping", filepath.Base(path))
	}
	root := doc.Content[0]
	val := scalarNode(value)
	replaced := false
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value == key {
			val.HeadComment = root.Content[i+1].HeadComment
			val.LineComment = root.Content[i+1].LineComment
			root.Content[i+1] = val
			replaced = true
			break
		}
	}
	if !replaced {
		root.Content = append(root.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}, val)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return writeFileAtomic(path, buf.Bytes())
}

func scalarNode(value string) *yaml.Node {
	if f, err := strconv.ParseFloat(value, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		tag := "!!float"
		if _, err := strconv.ParseInt(value, 10, 64); err == nil {
			tag = "!!int"
		}
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: value}
	}
	if value == "true" || value == "false" {
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: value}
	}
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value}
}

// SanitizeIslandName turns a display name into a folder name.
func SanitizeIslandName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, " ", "_")
	return strings.ReplaceAll(name, "/", "-")
}

// CreateIslandDir creates base/<sanitized name>/<metaFile> seeded with the
// name, the initial fields, and a created_at date.
func CreateIslandDir(base, metaFile, name string, initial map[string]string) (string, error) {
	dir := filepath.Join(base, SanitizeIslandName(name))
	if _, err := os.Stat(dir); err == nil {
		return "", fmt.Errorf("%w: %s", ErrIslandExists, dir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	root := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	add := func(k, v string) {
		root.Content = append(root.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v},
		)
	}
	add("name", name)
	keys := make([]string, 0, len(initial))
	for k := range initial {
		if k != "name" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		add(k, initial[k])
	}
	add("created_at", time.Now().Format("2006-01-02"))

	b, err := yaml.Marshal(root)
	if err != nil {
		return "", err
	}
	if metaFile == "" {
		metaFile = "meta.yaml"
	}
	path := filepath.Join(dir, metaFile)
	if err := writeFileAtomic(path, b); err != nil {
		return "", err
	}
	return path, nil
}

func writeFileAtomic(path string, b []byte) error {
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() { _ = os.Remove(tmp) }()
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	_ = os.Chmod(tmp, 0o644)
	return os.Rename(tmp, path)
}

// Package envfile builds the flat KEY=value file every healthchecks unit
// reads at start.
package envfile

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"zombiezen.com/go/nix/nixbase32"
)

// hashSize matches the truncated digest length of Nix store paths.
const hashSize = 20

type Entry struct {
	Key   string
	Value string
}

// File is an immutable, sorted set of entries.
type File struct {
	entries []Entry
}

func New(vars map[string]string) File {
	entries := make([]Entry, 0, len(vars))
	for k, v := range vars {
		entries = append(entries, Entry{Key: k, Value: v})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Key < entries[j].Key
	})
	return File{entries: entries}
}

func (f File) Entries() []Entry {
	return append([]Entry(nil), f.entries...)
}

func (f File) Len() int {
	return len(f.entries)
}

func (f File) Get(key string) (string, bool) {
	i := sort.Search(len(f.entries), func(i int) bool {
		return f.entries[i].Key >= key
	})
	if i < len(f.entries) && f.entries[i].Key == key {
		return f.entries[i].Value, true
	}
	return "", false
}

func (f File) Content() []byte {
	var buf bytes.Buffer
	for _, e := range f.entries {
		buf.WriteString(e.Key)
		buf.WriteByte('=')
		buf.WriteString(e.Value)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// Hash is the nixbase32 form of the content digest, folded to 160 bits the
// way Nix compresses store path hashes.
func (f File) Hash() string {
	sum := sha256.Sum256(f.Content())
	return nixbase32.EncodeToString(compress(sum[:], hashSize))
}

// PathIn returns the content-addressed location of the file inside dir.
func (f File) PathIn(dir, name string) string {
	return filepath.Join(dir, f.Hash()+"-"+name)
}

func compress(hash []byte, size int) []byte {
	out := make([]byte, size)
	for i, b := range hash {
		out[i%size] ^= b
	}
	return out
}

// WriteAtomic replaces path with content. Readers see either the old or the
// new file, never a partial one.
func WriteAtomic(path string, content []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ensure directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

// Parse reads KEY=value lines the way systemd's EnvironmentFile= does for
// this format: blank lines and # comments are skipped, whitespace around
// keys and values is trimmed and one level of matching single or double
// quotes is stripped.
func Parse(r io.Reader) (map[string]string, error) {
	vars := map[string]string{}
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		key, value, ok := strings.Cut(text, "=")
		if !ok {
			return nil, fmt.Errorf("line %d: missing '='", line)
		}
		key = strings.TrimSpace(strings.TrimPrefix(key, "export "))
		if key == "" {
			return nil, fmt.Errorf("line %d: empty key", line)
		}
		vars[key] = unquote(strings.TrimSpace(value))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read environment file: %w", err)
	}
	return vars, nil
}

// Environment returns the variables a unit reading f through
// EnvironmentFile= sees, which can differ from Entries for values with
// surrounding whitespace or quotes.
func (f File) Environment() (map[string]string, error) {
	return Parse(bytes.NewReader(f.Content()))
}

func ParseFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open environment file: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

func unquote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

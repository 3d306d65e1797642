package packager

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"release-agent/src/logger"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestFileHash(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "payload", "abc")

	tests := []struct {
		hashType string
		want     string
	}{
		{"sha1", "a9993e364706816aba3e25717850c26c9cd0d89d"},
		{"SHA1", "a9993e364706816aba3e25717850c26c9cd0d89d"},
		{"sha256", "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"},
		{"SHA512", "ddaf35a193617abacc417349ae20413112e6fa4e89a97ea20a9eeee64b55d39a2192992a274fc1a836ba3c23a3feebbd454d4423643ce80e2a9ac94fa54ca49f"},
	}

	for _, tt := range tests {
		t.Run(tt.hashType, func(t *testing.T) {
			got, err := FileHash(path, tt.hashType)
			if err != nil {
				t.Fatalf("FileHash() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("FileHash() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFileHashUnsupportedType(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "payload", "abc")

	if _, err := FileHash(path, "md5"); !errors.Is(err, ErrUnsupportedHash) {
		t.Errorf("FileHash() error = %v, want ErrUnsupportedHash", err)
	}
}

func TestFileHashMissingFile(t *testing.T) {
	if _, err := FileHash(filepath.Join(t.TempDir(), "nope"), "sha256"); err == nil {
		t.Error("FileHash() expected an error for a missing file")
	}
}

func TestGenerate(t *testing.T) {
	dir := t.TempDir()
	file1 := writeFile(t, dir, "one.tar.gz", "abc")
	file2 := writeFile(t, dir, "two.tar.gz", "abc")
	template := writeFile(t, dir, "manifest.tmpl", "version: $version\nsha256_1: $hash1\nsha256_2: $hash2\nsha256_3: $hash3\n")
	output := filepath.Join(dir, "manifest")

	in := Input{
		Version:      "0.9.6",
		TemplatePath: template,
		OutputPath:   output,
		HashType:     "sha256",
		Files:        []string{file1, file2},
	}
	if err := Generate(in, logger.NewSilentLogger()); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("failed to read generated file: %v", err)
	}
	got := string(data)

	if !strings.Contains(got, "version: 0.9.6") {
		t.Errorf("generated file missing version: %q", got)
	}
	if !strings.Contains(got, "sha256_1: ba7816bf") {
		t.Errorf("generated file missing hash1: %q", got)
	}
	if !strings.Contains(got, "sha256_2: ba7816bf") {
		t.Errorf("generated file missing hash2: %q", got)
	}
	// Only two files given, so $hash3 stays a placeholder.
	if !strings.Contains(got, "sha256_3: $hash3") {
		t.Errorf("generated file should keep $hash3 untouched: %q", got)
	}
}

func TestGenerateInputValidation(t *testing.T) {
	log := logger.NewSilentLogger()

	if err := Generate(Input{Version: "1.0"}, log); err == nil {
		t.Error("Generate() expected an error with no deployment files")
	}
	if err := Generate(Input{Version: "1.0", Files: []string{"a", "b", "c", "d"}}, log); err == nil {
		t.Error("Generate() expected an error with four deployment files")
	}
}

func TestGenerateUnsupportedHash(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "one.tar.gz", "abc")
	template := writeFile(t, dir, "manifest.tmpl", "$version")

	in := Input{
		Version:      "0.9.6",
		TemplatePath: template,
		OutputPath:   filepath.Join(dir, "manifest"),
		HashType:     "crc32",
		Files:        []string{file},
	}
	if err := Generate(in, logger.NewSilentLogger()); !errors.Is(err, ErrUnsupportedHash) {
		t.Errorf("Generate() error = %v, want ErrUnsupportedHash", err)
	}
}

// Package packager generates packaging manifests (nuspec, installer scripts,
// release manifests) by hashing deployment archives and substituting the
// results into a text template.
package packager

import (
	"fmt"
	"os"

	"release-agent/src/logger"
)

// Input describes one packaging run: the release version, the template to
// expand, where to write the result, the hash type, and one to three
// deployment files whose digests become $hash1..$hash3.
type Input struct {
	Version      string
	TemplatePath string
	OutputPath   string
	HashType     string
	Files        []string
}

// Generate hashes the deployment files, expands the template, and writes the
// generated package file. The generated content is echoed through the logger
// so CI logs record exactly what was published.
func Generate(in Input, log logger.Logger) error {
	if len(in.Files) == 0 || len(in.Files) > 3 {
		return fmt.Errorf("expected between 1 and 3 deployment files, got %d", len(in.Files))
	}

	log.Info("Generating package for file: %s", in.Files[0])
	for _, f := range in.Files[1:] {
		log.Info("and for file: %s", f)
	}
	log.Info("     VERSION: %s", in.Version)
	log.Info("     TEMPLATE PATH: %s", in.TemplatePath)
	log.Info("     SAVING AT: %s", in.OutputPath)
	log.Info("     USING HASH TYPE: %s", in.HashType)

	vars := map[string]string{
		"version": in.Version,
	}
	for i, f := range in.Files {
		digest, err := FileHash(f, in.HashType)
		if err != nil {
			return err
		}
		log.Info("Generated hash: %s", digest)
		vars[fmt.Sprintf("hash%d", i+1)] = digest
	}

	template, err := os.ReadFile(in.TemplatePath)
	if err != nil {
		return fmt.Errorf("failed to read template: %w", err)
	}

	generated := Substitute(string(template), vars)

	log.Info("\n================== Generated package file ==================\n\n%s\n\n============================================================\n", generated)

	if err := os.WriteFile(in.OutputPath, []byte(generated), 0o644); err != nil {
		return fmt.Errorf("failed to write generated file: %w", err)
	}

	return nil
}

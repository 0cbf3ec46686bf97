// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Command gen-schema writes the catalog and extension descriptor JSON Schema
// files.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/holomush/extmgr/internal/catalog"
)

var schemas = []struct {
	file     string
	generate func() ([]byte, error)
}{
	{file: "catalog.schema.json", generate: catalog.GenerateSchema},
	{file: "descriptor.schema.json", generate: catalog.GenerateDescriptorSchema},
}

func main() {
	fs := pflag.NewFlagSet("gen-schema", pflag.ExitOnError)
	outDir := fs.String("out", "schemas", "output directory")
	_ = fs.Parse(os.Args[1:])

	if err := run(*outDir, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(outDir string, w io.Writer) error {
	if err := os.MkdirAll(outDir, 0o750); err != nil {
		return oops.With("path", outDir).Wrapf(err, "create output directory")
	}
	for _, s := range schemas {
		data, err := s.generate()
		if err != nil {
			return oops.With("file", s.file).Wrapf(err, "generate schema")
		}
		path := filepath.Join(outDir, s.file)
		if err := os.WriteFile(path, data, 0o600); err != nil {
			return oops.With("path", path).Wrapf(err, "write schema")
		}
		_, _ = fmt.Fprintf(w, "Generated %s\n", path)
	}
	return nil
}

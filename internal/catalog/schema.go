// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package catalog

import (
	"bytes"
	"encoding/json"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/samber/oops"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/holomush/extmgr/internal/extension"
)

// SchemaID is the canonical id of the catalog document schema.
const SchemaID = "https://extmgr.holomush.dev/schemas/catalog.schema.json"

// DescriptorSchemaID is the canonical id of the config.json schema.
const DescriptorSchemaID = "https://extmgr.holomush.dev/schemas/descriptor.schema.json"

var (
	compileOnce sync.Once
	compiled    *jschema.Schema
	compileErr  error
)

// GenerateSchema generates the JSON Schema for catalog documents.
func GenerateSchema() ([]byte, error) {
	r := jsonschema.Reflector{
		DoNotReference:            true,
		AllowAdditionalProperties: true,
	}
	schema := r.Reflect(&Document{})
	schema.ID = jsonschema.ID(SchemaID)
	schema.Title = "Extension Catalog"
	schema.Description = "Schema for remote extension catalog documents"
	return marshalSchema(schema)
}

// GenerateDescriptorSchema generates the JSON Schema for extension config.json files.
func GenerateDescriptorSchema() ([]byte, error) {
	r := jsonschema.Reflector{
		DoNotReference:            true,
		AllowAdditionalProperties: true,
	}
	schema := r.Reflect(&extension.Descriptor{})
	schema.ID = jsonschema.ID(DescriptorSchemaID)
	schema.Title = "Extension Descriptor"
	schema.Description = "Schema for an extension's config.json"
	return marshalSchema(schema)
}

func marshalSchema(schema *jsonschema.Schema) ([]byte, error) {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, oops.Wrapf(err, "marshal schema")
	}
	return data, nil
}

// ValidateDocument checks raw catalog JSON against the catalog schema.
func ValidateDocument(data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return oops.Code(extension.CodeCatalogMalformed).Errorf("catalog document is empty")
	}

	doc, err := jschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return oops.Code(extension.CodeCatalogMalformed).Wrapf(err, "invalid JSON")
	}

	sch, err := compiledSchema()
	if err != nil {
		return oops.Wrapf(err, "compile catalog schema")
	}
	if err := sch.Validate(doc); err != nil {
		return oops.Code(extension.CodeCatalogMalformed).Wrapf(err, "schema validation failed")
	}
	return nil
}

// ParseDocument validates and decodes a catalog document.
func ParseDocument(data []byte) (*Document, error) {
	if err := ValidateDocument(data); err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, oops.Code(extension.CodeCatalogMalformed).Wrapf(err, "decode catalog")
	}
	return &doc, nil
}

func compiledSchema() (*jschema.Schema, error) {
	compileOnce.Do(func() {
		schemaBytes, err := GenerateSchema()
		if err != nil {
			compileErr = err
			return
		}
		schemaDoc, err := jschema.UnmarshalJSON(bytes.NewReader(schemaBytes))
		if err != nil {
			compileErr = oops.Wrapf(err, "parse schema JSON")
			return
		}
		c := jschema.NewCompiler()
		if err := c.AddResource(SchemaID, schemaDoc); err != nil {
			compileErr = oops.Wrapf(err, "add schema resource")
			return
		}
		compiled, compileErr = c.Compile(SchemaID)
	})
	return compiled, compileErr
}

// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package config

import (
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"

	"grimm.is/tcbridge/internal/errors"
)

// MigrateHCL rewrites schema_version in an HCL document to
// CurrentSchemaVersion, preserving comments and formatting. It reports
// whether anything changed. The result is decoded again before it is
// returned so a migration never produces a file LoadHCL would reject.
func MigrateHCL(data []byte, filename string) ([]byte, bool, error) {
	f, diags := hclwrite.ParseConfig(data, filename, hcl.Pos{Line: 1, Column: 1})
	if diags.HasErrors() {
		return nil, false, errors.Wrap(diags, errors.KindParseFailed, "failed to parse HCL")
	}

	if attr := f.Body().GetAttribute("schema_version"); attr != nil {
		if currentVersion(attr) == CurrentSchemaVersion {
			return data, false, nil
		}
	}

	f.Body().SetAttributeValue("schema_version", cty.StringVal(CurrentSchemaVersion))
	out := f.Bytes()

	if _, err := LoadHCL(out, filename); err != nil {
		return nil, false, errors.Wrap(err, errors.KindInvalidSpec, "migrated config does not load")
	}
	return out, true, nil
}

// currentVersion returns the literal string value of attr, or "" when it
// is not a plain string.
func currentVersion(attr *hclwrite.Attribute) string {
	src := attr.Expr().BuildTokens(nil).Bytes()
	expr, diags := hclsyntax.ParseExpression(src, "schema_version", hcl.Pos{Line: 1, Column: 1})
	if diags.HasErrors() {
		return ""
	}
	v, diags := expr.Value(nil)
	if diags.HasErrors() || v.Type() != cty.String || v.IsNull() {
		return ""
	}
	return strings.TrimSpace(v.AsString())
}

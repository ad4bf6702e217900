package mcpserver

// DirectiveContract describes the x-* schema directives that drive
// aggregation. LLM consumers read it before writing documents or schemas.
const DirectiveContract = `# fmschema Directive Contract

A schema is a JSON Schema document (JSON or YAML). Standard keywords describe
the output shape; the x-* keywords below tell the pipeline how to fill it from
the frontmatter of the input documents.

## Directives

| Keyword | Value | Meaning |
|---|---|---|
| ` + "`x-frontmatter-part`" + ` | ` + "`true`" + ` on an array property | Every document's frontmatter becomes one item of this array. Exactly one property should carry it; the first one found wins. |
| ` + "`x-derived-from`" + ` | source path, e.g. ` + "`commands[].c1`" + ` | The property is computed from the aggregate. ` + "`[]`" + ` collects the named field of every array item. |
| ` + "`x-derived-unique`" + ` | ` + "`true`" + ` | Drop duplicate derived values, keeping first occurrence order. |
| ` + "`x-flatten-arrays`" + ` | item-relative path, e.g. ` + "`tags`" + ` | Nested arrays at this path are flattened one level before aggregation. |
| ` + "`x-template`" + ` | file path relative to the schema | Template applied to the aggregate to produce the output. |
| ` + "`x-template-items`" + ` | file path relative to the schema | Template applied to each part item, inserted where the main template holds ` + "`{@items}`" + `. |

## Documents

` + "```" + `markdown
---
c1: git
c2: commit
---
Body is ignored by aggregation.
` + "```" + `

- Frontmatter is YAML between ` + "`---`" + ` fences at the very start of the file, or a
  JSON object (leading ` + "`{`" + ` or a ` + "`---json`" + ` fence).
- A document without frontmatter is skipped when it would become an empty item.
- Keys are case sensitive and should match the item schema properties.

## Templates

- ` + "`{{name}}`" + ` and ` + "`{{a.b.0.c}}`" + ` read values from the aggregate.
- ` + "`{{name|fallback}}`" + ` uses the fallback when defaults are enabled.
- ` + "`{{cond ? yes : no}}`" + ` picks a branch by the truthiness of ` + "`cond`" + `.
- A string that is exactly one placeholder keeps the value's type (arrays
  stay arrays); inside longer text values are rendered as JSON for arrays and
  objects.
- Strict mode fails on any unresolved variable; partial mode leaves the
  placeholder in place.

## Example

` + "```" + `json
{
  "type": "object",
  "x-template": "registry.tmpl.yaml",
  "properties": {
    "tools": {
      "type": "object",
      "properties": {
        "availableConfigs": {
          "type": "array",
          "x-derived-from": "commands[].c1",
          "x-derived-unique": true
        },
        "commands": {
          "type": "array",
          "x-frontmatter-part": true,
          "items": {"$ref": "#/definitions/command"}
        }
      }
    }
  }
}
` + "```" + `
`

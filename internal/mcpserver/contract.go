package mcpserver

// ResourceFormat describes the resource types and their fields for LLM
// clients creating resources through the tools.
const ResourceFormat = `# Stash Resource Format

Every resource has a type, a title and optional folderId, tags, favorite and
annotations. The type is fixed at creation and decides which other fields the
resource carries. Fields that do not belong to the type are ignored on create
and rejected on update.

| type     | required | optional                           |
|----------|----------|------------------------------------|
| bookmark | url      | description                        |
| prompt   | content  | platform, category                 |
| snippet  | content  | codeLanguage, description          |
| document | (none)   | fileUrl, fileName, fileSize, fileType, description |
| note     | content  | (none)                             |

## Rules

1. **title** is required, at most 200 characters.
2. **tags** are trimmed, lowercased and de-duplicated; at most 50 tags of 50
   characters each.
3. **annotations** are free text, at most 2000 characters.
4. **folderId** must name one of your folders. Leave it empty to keep the
   resource unfiled.
5. Documents are created from file bytes with the ` + "`" + `attach_document` + "`" + ` tool,
   which stores the file and fills the file fields.

## Searching

` + "`" + `search_resources` + "`" + ` filters are combined with AND. ` + "`" + `tags` + "`" + ` matches resources
carrying any of the given tags. ` + "`" + `folderId: "root"` + "`" + ` selects unfiled resources.
` + "`" + `query` + "`" + ` matches any word against title, tags, description, content and
annotations, best matches first.
`

package outbox

const importCompletedSchema = `{
  "type": "object",
  "title": "ImportCompleted",
  "properties": {
    "import_id": {"type": "string"},
    "owner_id": {"type": "string"},
    "source_type": {"type": "string"},
    "source_file": {"type": "string"},
    "records_imported": {"type": "integer"},
    "status": {"type": "string", "enum": ["success", "partial", "failed"]},
    "imported_at": {"type": "string", "format": "date-time"},
    "routes_dir": {"type": "string"}
  },
  "required": ["import_id", "owner_id", "source_type", "source_file", "records_imported", "status", "imported_at"],
  "additionalProperties": false
}`

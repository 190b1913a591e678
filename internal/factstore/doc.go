// Package factstore persists typed, schema-versioned project facts.
//
// One JSON document per category under the project data directory.
// Saves shallow-merge new fields over the old document (lists replaced
// wholesale); reads never fail, degrading to the category default on
// absence or corruption. Writes are temp-file + atomic rename.
package factstore

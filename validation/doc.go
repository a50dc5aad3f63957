// Package validation checks structs against `validate` tags and collects
// programmatic checks, reporting every failure as a FieldError.
//
// Field names come from the mapstructure tag, then the json tag, then the
// Go name in snake_case, so messages match configuration keys:
//
//	type Settings struct {
//	    ChunkSize int32 `mapstructure:"chunk_size" validate:"gt=0"`
//	}
//	err := validation.Struct(Settings{}) // "chunk_size: must be greater than 0"
//
// Programmatic checks:
//
//	v := validation.New()
//	v.Check(strings.HasPrefix(path, "/"), "path", "must start with /")
//	return v.Err()
package validation

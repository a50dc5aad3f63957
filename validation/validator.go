package validation

import "strings"

// FieldError is one failed check.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Errors lists failed checks in the order they were found.
type Errors []FieldError

func (e Errors) Error() string {
	parts := make([]string, len(e))
	for i, fe := range e {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return strings.Join(parts, "; ")
}

// Fields maps each failing field to its first message.
func (e Errors) Fields() map[string]string {
	m := make(map[string]string, len(e))
	for _, fe := range e {
		if _, ok := m[fe.Field]; !ok {
			m[fe.Field] = fe.Message
		}
	}
	return m
}

// Validator collects programmatic checks.
type Validator struct {
	prefix string
	errs   Errors
}

// New creates a Validator. A non-empty prefix is prepended to every
// field name, e.g. "upload." gives "upload.path".
func New(prefix ...string) *Validator {
	return &Validator{prefix: strings.Join(prefix, "")}
}

// Check records message for field unless ok.
func (v *Validator) Check(ok bool, field, message string) *Validator {
	if !ok {
		v.errs = append(v.errs, FieldError{Field: v.prefix + field, Message: message})
	}
	return v
}

// Struct runs Struct(s) and records its failures under the prefix.
// Other errors are recorded against the prefix itself.
func (v *Validator) Struct(s any) *Validator {
	err := Struct(s)
	if err == nil {
		return v
	}
	if errs, ok := err.(Errors); ok {
		for _, fe := range errs {
			v.errs = append(v.errs, FieldError{Field: v.prefix + fe.Field, Message: fe.Message})
		}
		return v
	}
	v.errs = append(v.errs, FieldError{Field: strings.TrimSuffix(v.prefix, "."), Message: err.Error()})
	return v
}

// Valid reports whether every check passed.
func (v *Validator) Valid() bool { return len(v.errs) == 0 }

// Err returns the collected Errors, or nil.
func (v *Validator) Err() error {
	if len(v.errs) == 0 {
		return nil
	}
	return v.errs
}

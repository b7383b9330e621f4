package utils

type PermError string

func (e PermError) Error() string {
	return string(e)
}

func (e PermError) IsPermanent() bool {
	return true
}

// Failure kinds of a single read, write or merge call. None of them are
// retried internally; wrap them with fmt.Errorf("...: %w", ErrX) and match
// with errors.Is.
var (
	// ErrNotFound is a missing source path. The wrapped chain also carries
	// the *fs.PathError (ENOENT) from the stat that detected it.
	ErrNotFound = PermError("not found")
	// ErrInvalidConfig is an unsupported option value, detected before I/O.
	ErrInvalidConfig = PermError("invalid config")
	// ErrSchema is a requested column that does not exist, or a name clash.
	ErrSchema = PermError("schema error")
	// ErrEncoding is a column type that cannot be stored losslessly.
	ErrEncoding = PermError("encoding error")
	// ErrSchemaMismatch is a footer merge across incompatible schemas.
	ErrSchemaMismatch = PermError("schema mismatch")
)

// IsPermanent reports whether err should stop a retry loop.
func IsPermanent(err error) bool {
	type permanent interface{ IsPermanent() bool }
	for err != nil {
		if p, ok := err.(permanent); ok && p.IsPermanent() {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			multi, ok := err.(interface{ Unwrap() []error })
			if !ok {
				return false
			}
			for _, e := range multi.Unwrap() {
				if IsPermanent(e) {
					return true
				}
			}
			return false
		}
		err = u.Unwrap()
	}
	return false
}

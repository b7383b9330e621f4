package indexcodec

import (
	"fmt"
	"strings"

	"github.com/danthegoodman1/pqframe/utils"
)

// Policy decides whether a table's index is written.
type Policy int

const (
	// Auto writes the index only when it (or one of its levels) is named.
	Auto Policy = iota
	// Include always writes the index, generating a name if it has none.
	Include
	// Exclude never writes the index.
	Exclude
)

func (p Policy) String() string {
	switch p {
	case Auto:
		return "auto"
	case Include:
		return "include"
	case Exclude:
		return "exclude"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy accepts "auto" (or ""), "include"/"true" and "exclude"/"false".
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return Auto, nil
	case "include", "true":
		return Include, nil
	case "exclude", "false":
		return Exclude, nil
	default:
		return Auto, fmt.Errorf("unknown index policy %q: %w", s, utils.ErrInvalidConfig)
	}
}

func (p Policy) Validate() error {
	if p < Auto || p > Exclude {
		return fmt.Errorf("unknown index policy %d: %w", int(p), utils.ErrInvalidConfig)
	}
	return nil
}

package partitioner

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

type (
	PartitionPlan struct {
		Func string   `validate:"required"`
		Args []string `validate:"required,min=1"`
		As   string   `validate:"required"`
	}

	PartitionFunc func(row map[string]any, args []string) (string, error)
)

var (
	Functions = make(map[string]PartitionFunc)
	register  sync.Once

	ErrFuncNotFound = errors.New("partition function not found")

	ErrMissingArgs       = errors.New("missing args")
	ErrMissingColumns    = errors.New("missing one or more columns specified in args")
	ErrInvalidColumnType = errors.New("invalid column type")
)

func init() {
	RegisterFunctions()
}

// RegisterFunctions fills Functions. Calling it again is a no-op.
func RegisterFunctions() {
	register.Do(func() {
		timePart := func(render func(t time.Time) string) PartitionFunc {
			return func(row map[string]any, args []string) (string, error) {
				t, err := parseTime(row, args)
				if err != nil {
					return "", fmt.Errorf("error in parseTime: %w", err)
				}
				return render(t), nil
			}
		}

		Functions["toYear"] = timePart(func(t time.Time) string { return strconv.Itoa(t.Year()) })
		Functions["toMonth"] = timePart(func(t time.Time) string { return fmt.Sprintf("%02d", int(t.Month())) })
		Functions["toDay"] = timePart(func(t time.Time) string { return strconv.Itoa(t.Day()) })
		Functions["toYearDay"] = timePart(func(t time.Time) string { return strconv.Itoa(t.YearDay()) })
		Functions["toYearWeek"] = timePart(func(t time.Time) string {
			y, w := t.ISOWeek()
			return fmt.Sprintf("%d-%02d", y, w)
		})
		Functions["toWeekDay"] = timePart(func(t time.Time) string { return strconv.Itoa(int(t.Weekday())) })
		Functions["identity"] = identity
	})
}

// GetRowPartition renders the partition path of row, "as=value/as=value".
// No plans means the unpartitioned path "".
func GetRowPartition(row map[string]any, plans []PartitionPlan) (string, error) {
	parts := make([]string, 0, len(plans))
	for _, plan := range plans {
		f, ok := Functions[plan.Func]
		if !ok {
			return "", fmt.Errorf("%s: %w", plan.Func, ErrFuncNotFound)
		}

		s, err := f(row, plan.Args)
		if err != nil {
			return "", fmt.Errorf("error processing partition function %s: %w", plan.Func, err)
		}
		parts = append(parts, fmt.Sprintf("%s=%s", plan.As, s))
	}
	return strings.Join(parts, "/"), nil
}

// GroupRows buckets rows by partition path, keeping row order inside each
// bucket. Keys are returned sorted.
func GroupRows(rows []map[string]any, plans []PartitionPlan) (map[string][]map[string]any, []string, error) {
	groups := make(map[string][]map[string]any)
	for i, row := range rows {
		p, err := GetRowPartition(row, plans)
		if err != nil {
			return nil, nil, fmt.Errorf("row %d: %w", i, err)
		}
		groups[p] = append(groups[p], row)
	}
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return groups, keys, nil
}

func identity(row map[string]any, args []string) (string, error) {
	if len(args) == 0 {
		return "", ErrMissingArgs
	}
	value, exists := row[args[0]]
	if !exists {
		return "", ErrMissingColumns
	}
	var s string
	switch v := value.(type) {
	case nil:
		s = "null"
	case string:
		s = v
	case float64:
		s = strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		s = strconv.FormatBool(v)
	default:
		return "", ErrInvalidColumnType
	}
	return url.PathEscape(s), nil
}

func parseTime(row map[string]any, args []string) (time.Time, error) {
	if len(args) == 0 {
		return time.Time{}, ErrMissingArgs
	}

	key := args[0]
	if key == "now()" {
		return time.Now().UTC(), nil
	}

	value, exists := row[key]
	if !exists {
		return time.Time{}, ErrMissingColumns
	}

	switch v := value.(type) {
	case string:
		// YYYY-MM-DDTHH:mm:ss.sssZ, or any RFC3339 timestamp
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}, fmt.Errorf("error in time.Parse for string: %w", err)
		}
		return t.UTC(), nil
	case float64:
		// unix millis, as decoded from JSON
		return time.UnixMilli(int64(v)).UTC(), nil
	default:
		return time.Time{}, ErrInvalidColumnType
	}
}

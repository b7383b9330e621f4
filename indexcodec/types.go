package indexcodec

import (
	"fmt"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/danthegoodman1/pqframe/utils"
)

// columnMetadata describes one stored column. It fails with ErrEncoding when
// the column's type has no lossless Parquet mapping.
func columnMetadata(name *string, fieldName string, arr arrow.Array) (ColumnMetadata, error) {
	pandasType, numpyType, extra, err := describeType(arr.DataType(), arr)
	if err != nil {
		return ColumnMetadata{}, fmt.Errorf("column %q: %w", fieldName, err)
	}
	return ColumnMetadata{
		Name:       name,
		FieldName:  fieldName,
		PandasType: pandasType,
		NumpyType:  numpyType,
		Metadata:   extra,
	}, nil
}

// CheckType reports whether dt can be written without loss.
func CheckType(dt arrow.DataType) error {
	_, _, _, err := describeType(dt, nil)
	return err
}

func describeType(dt arrow.DataType, arr arrow.Array) (pandasType, numpyType string, extra map[string]any, err error) {
	switch dt.ID() {
	case arrow.BOOL:
		return "bool", "bool", nil, nil
	case arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64,
		arrow.UINT8, arrow.UINT16, arrow.UINT32, arrow.UINT64,
		arrow.FLOAT32, arrow.FLOAT64:
		return numpyName(dt), numpyName(dt), nil, nil
	case arrow.STRING, arrow.LARGE_STRING:
		return "unicode", "object", nil, nil
	case arrow.BINARY, arrow.LARGE_BINARY, arrow.FIXED_SIZE_BINARY:
		return "bytes", "object", nil, nil
	case arrow.DATE32:
		return "date", "object", nil, nil
	case arrow.TIMESTAMP:
		ts := dt.(*arrow.TimestampType)
		numpy := "datetime64[" + ts.Unit.String() + "]"
		if ts.TimeZone != "" {
			return "datetimetz", numpy, map[string]any{"timezone": ts.TimeZone}, nil
		}
		return "datetime", numpy, nil, nil
	case arrow.DECIMAL128:
		dec := dt.(*arrow.Decimal128Type)
		return "decimal", "object", map[string]any{"precision": dec.Precision, "scale": dec.Scale}, nil
	case arrow.DICTIONARY:
		dict := dt.(*arrow.DictionaryType)
		if !arrow.IsInteger(dict.IndexType.ID()) {
			return "", "", nil, fmt.Errorf("dictionary index type %s: %w", dict.IndexType, utils.ErrEncoding)
		}
		// pqarrow only restores dictionaries of string or binary values
		switch dict.ValueType.ID() {
		case arrow.STRING, arrow.LARGE_STRING, arrow.BINARY, arrow.LARGE_BINARY:
		default:
			return "", "", nil, fmt.Errorf("dictionary of %s values: %w", dict.ValueType, utils.ErrEncoding)
		}
		extra = map[string]any{"ordered": dict.Ordered, "num_categories": nil}
		if d, ok := arr.(*array.Dictionary); ok {
			extra["num_categories"] = d.Dictionary().Len()
		}
		return "categorical", numpyName(dict.IndexType), extra, nil
	case arrow.LIST, arrow.LARGE_LIST:
		elem := dt.(arrow.ListLikeType).Elem()
		elemType, _, _, err := describeType(elem, nil)
		if err != nil {
			return "", "", nil, err
		}
		return "list[" + elemType + "]", "object", nil, nil
	case arrow.STRUCT:
		for _, f := range dt.(*arrow.StructType).Fields() {
			if _, _, _, err := describeType(f.Type, nil); err != nil {
				return "", "", nil, fmt.Errorf("struct field %q: %w", f.Name, err)
			}
		}
		return "object", "object", nil, nil
	default:
		return "", "", nil, fmt.Errorf("type %s has no lossless parquet mapping: %w", dt, utils.ErrEncoding)
	}
}

func numpyName(dt arrow.DataType) string {
	switch dt.ID() {
	case arrow.FLOAT32:
		return "float32"
	case arrow.FLOAT64:
		return "float64"
	default:
		// arrow's integer names (int8 ... uint64) match numpy's
		return dt.Name()
	}
}

package utils

import (
	"github.com/goccy/go-json"
	"github.com/labstack/echo/v4"
)

// NoEscapeJSONSerializer is echo's JSON serializer without HTML escaping,
// column names like "a<b" come back untouched.
type NoEscapeJSONSerializer struct{}

func (d *NoEscapeJSONSerializer) Serialize(c echo.Context, i interface{}, indent string) error {
	enc := json.NewEncoder(c.Response())
	enc.SetEscapeHTML(false)
	if indent != "" {
		enc.SetIndent("", indent)
	}
	return enc.Encode(i)
}

func (d *NoEscapeJSONSerializer) Deserialize(c echo.Context, i interface{}) error {
	err := json.NewDecoder(c.Request().Body).Decode(i)
	if ute, ok := err.(*json.UnmarshalTypeError); ok {
		return echo.NewHTTPError(400, "Unmarshal type error: expected="+ute.Type.String()+", got="+ute.Value).SetInternal(err)
	} else if se, ok := err.(*json.SyntaxError); ok {
		return echo.NewHTTPError(400, "Syntax error: "+se.Error()).SetInternal(err)
	}
	return err
}

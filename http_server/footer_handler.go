package http_server

import (
	"net/http"

	"github.com/danthegoodman1/pqframe/dataset"
	"github.com/danthegoodman1/pqframe/pqread"
)

// FooterHandler describes a stored file from its footer alone.
func (s *HTTPServer) FooterHandler(c *CustomContext) error {
	key := c.QueryParam("key")
	if key == "" {
		return c.String(http.StatusBadRequest, "missing key")
	}
	ctx := c.Request().Context()

	src, err := dataset.SourceFor(ctx, s.Store, key)
	if err != nil {
		return c.OpError(err, "error opening file")
	}
	info, err := pqread.ReadMetadata(ctx, src)
	if err != nil {
		return c.OpError(err, "error reading footer")
	}
	return c.JSON(http.StatusOK, info)
}

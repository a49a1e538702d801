package pricing

import (
	"context"
	"net/http"
	"time"

	"gymcore/internal/api"
	"gymcore/internal/catalog"

	"github.com/gin-gonic/gin"
)

type Catalog interface {
	GetPackage(ctx context.Context, id int) (*catalog.Package, error)
	ListPackages(ctx context.Context, onlyActive bool) ([]catalog.Package, error)
}

type Handler struct {
	catalog Catalog
	calc    *Calculator
	now     func() time.Time
}

func NewHandler(c Catalog, calc *Calculator) *Handler {
	return &Handler{catalog: c, calc: calc, now: time.Now}
}

// PricedPackage is a package together with what it costs today.
type PricedPackage struct {
	catalog.Package
	Quote *Quote `json:"quote"`
}

// ListPackages godoc
// @Summary      List packages with current prices
// @Tags         packages
// @Produce      json
// @Success      200  {array}  PricedPackage
// @Router       /packages [get]
func (h *Handler) ListPackages(c *gin.Context) {
	ctx := c.Request.Context()
	pkgs, err := h.catalog.ListPackages(ctx, true)
	if err != nil {
		api.WriteError(c, err)
		return
	}

	now := h.now()
	out := make([]PricedPackage, 0, len(pkgs))
	for i := range pkgs {
		q, err := h.calc.Quote(ctx, &pkgs[i], now)
		if err != nil {
			api.WriteError(c, err)
			return
		}
		out = append(out, PricedPackage{Package: pkgs[i], Quote: q})
	}
	c.JSON(http.StatusOK, out)
}

// Quote godoc
// @Summary      Price breakdown for one package
// @Tags         packages
// @Produce      json
// @Param        id   path      int  true  "Package ID"
// @Success      200  {object}  Quote
// @Failure      404  {object}  api.ErrorResponse
// @Router       /packages/{id}/quote [get]
func (h *Handler) Quote(c *gin.Context) {
	id, ok := api.PathID(c, "id")
	if !ok {
		return
	}

	pkg, err := h.catalog.GetPackage(c.Request.Context(), id)
	if err != nil {
		api.WriteError(c, err)
		return
	}
	q, err := h.calc.Quote(c.Request.Context(), pkg, h.now())
	if err != nil {
		api.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

package controllers

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"

	"github.com/darcho/darcho/app/repositories"
	"github.com/darcho/darcho/app/services"
	"github.com/darcho/darcho/pkg/ctx"
	"github.com/darcho/darcho/pkg/storage"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type ProductController struct {
	service *services.ProductService
}

func NewProductController() *ProductController {
	return &ProductController{service: services.NewProductService()}
}

func viewer(c *ctx.Context) services.Viewer {
	return services.Viewer{UserID: c.UserID(), Role: c.Role()}
}

func queryFloat(c *ctx.Context, key string) float64 {
	f, err := strconv.ParseFloat(c.Query(key), 64)
	if err != nil || f < 0 {
		return 0
	}
	return f
}

func productFilter(c *ctx.Context) repositories.ProductFilter {
	return repositories.ProductFilter{
		Q:        c.Query("q"),
		Region:   c.Query("region"),
		Process:  c.Query("process"),
		Grade:    c.QueryInt("grade", 0),
		MinPrice: queryFloat(c, "min_price"),
		MaxPrice: queryFloat(c, "max_price"),
		FarmerID: uint(max(c.QueryInt("farmer_id", 0), 0)),
		Sort:     c.Query("sort"),
	}
}

// Index is the public catalogue.
func (pc *ProductController) Index(c *ctx.Context) {
	page, limit := c.Page()
	products, p, err := pc.service.List(c.Context(), viewer(c), productFilter(c), page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Paginated(products, p)
}

func (pc *ProductController) Show(c *ctx.Context) {
	pid, ok := id(c, "id")
	if !ok {
		return
	}
	product, err := pc.service.Get(c.Context(), viewer(c), pid)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Success(product)
}

// Mine lists the signed-in farmer's own lots, sold out and inactive included.
func (pc *ProductController) Mine(c *ctx.Context) {
	page, limit := c.Page()
	products, p, err := pc.service.ListForFarmer(c.Context(), c.UserID(), productFilter(c), page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Paginated(products, p)
}

func (pc *ProductController) Store(c *ctx.Context) {
	var in services.ProductInput
	if !c.BindJSON(&in) {
		return
	}
	product, err := pc.service.Create(c.Context(), c.UserID(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Created(product)
}

func (pc *ProductController) Update(c *ctx.Context) {
	pid, ok := id(c, "id")
	if !ok {
		return
	}
	var in services.ProductUpdate
	if !c.BindJSON(&in) {
		return
	}
	product, err := pc.service.Update(c.Context(), c.UserID(), pid, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Success(product)
}

func (pc *ProductController) Destroy(c *ctx.Context) {
	pid, ok := id(c, "id")
	if !ok {
		return
	}
	if err := pc.service.Delete(c.Context(), c.UserID(), pid); err != nil {
		respondError(c, err)
		return
	}
	c.Message("Product deleted")
}

// UploadImage takes a multipart form with an "image" file.
func (pc *ProductController) UploadImage(c *ctx.Context) {
	pid, ok := id(c, "id")
	if !ok {
		return
	}
	c.R.Body = http.MaxBytesReader(c.W, c.R.Body, storage.MaxImageBytes+1<<20)
	file, header, err := c.R.FormFile("image")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			c.ValidationError(map[string]string{"image": "The image may not be larger than 5 MB."})
			return
		}
		c.ValidationError(map[string]string{"image": "The image field is required."})
		return
	}
	defer file.Close()

	product, err := pc.service.UploadImage(c.Context(), c.UserID(), pid, header.Size, file)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Success(product)
}

// Export downloads the farmer's lots as a spreadsheet.
func (pc *ProductController) Export(c *ctx.Context) {
	var buf bytes.Buffer
	if err := pc.service.Export(c.Context(), c.UserID(), &buf); err != nil {
		respondError(c, err)
		return
	}
	c.SetHeader("Content-Type", xlsxContentType)
	c.SetHeader("Content-Disposition", `attachment; filename="darcho-products.xlsx"`)
	c.SetHeader("Content-Length", strconv.Itoa(buf.Len()))
	c.W.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(c.W)
}

// Remove is admin moderation.
func (pc *ProductController) Remove(c *ctx.Context) {
	pid, ok := id(c, "id")
	if !ok {
		return
	}
	if err := pc.service.Remove(c.Context(), pid); err != nil {
		respondError(c, err)
		return
	}
	c.Message("Product removed")
}

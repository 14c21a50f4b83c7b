// Package graphql is the read-only catalogue schema served at POST /graphql.
//
//	{ products(region: "Guji", process: "natural", limit: 5) { id name price_per_kg farmer_name } }
//	{ product(id: 3) { name cupping_score } }
//	{ farmers(region: "Sidamo") { user_id farm_name } }
package graphql

import (
	"errors"
	"strconv"

	"github.com/graphql-go/graphql"

	"github.com/darcho/darcho/app/models"
	"github.com/darcho/darcho/app/repositories"
	"github.com/darcho/darcho/app/services"
	gql "github.com/darcho/darcho/pkg/graphql"
	"github.com/darcho/darcho/pkg/middleware"
)

var productType = graphql.NewObject(graphql.ObjectConfig{
	Name: "Product",
	Fields: graphql.Fields{
		"id":            &graphql.Field{Type: graphql.NewNonNull(graphql.ID)},
		"farmer_id":     &graphql.Field{Type: graphql.ID},
		"farmer_name":   &graphql.Field{Type: graphql.String},
		"name":          &graphql.Field{Type: graphql.String},
		"variety":       &graphql.Field{Type: graphql.String},
		"region":        &graphql.Field{Type: graphql.String},
		"process":       &graphql.Field{Type: graphql.String},
		"grade":         &graphql.Field{Type: graphql.Int},
		"altitude_m":    &graphql.Field{Type: graphql.Int},
		"harvest_year":  &graphql.Field{Type: graphql.Int},
		"cupping_score": &graphql.Field{Type: graphql.Float},
		"price_per_kg":  &graphql.Field{Type: graphql.Float},
		"quantity_kg":   &graphql.Field{Type: graphql.Float},
		"min_order_kg":  &graphql.Field{Type: graphql.Float},
		"description":   &graphql.Field{Type: graphql.String},
		"image_url":     &graphql.Field{Type: graphql.String},
		"status":        &graphql.Field{Type: graphql.String},
	},
})

var farmerType = graphql.NewObject(graphql.ObjectConfig{
	Name: "Farmer",
	Fields: graphql.Fields{
		"user_id":        &graphql.Field{Type: graphql.NewNonNull(graphql.ID)},
		"farm_name":      &graphql.Field{Type: graphql.String},
		"region":         &graphql.Field{Type: graphql.String},
		"zone":           &graphql.Field{Type: graphql.String},
		"altitude_m":     &graphql.Field{Type: graphql.Int},
		"farm_size_ha":   &graphql.Field{Type: graphql.Float},
		"certifications": &graphql.Field{Type: graphql.String},
		"bio":            &graphql.Field{Type: graphql.String},
	},
})

func productView(p models.Product) map[string]any {
	v := map[string]any{
		"id":            p.ID,
		"farmer_id":     p.FarmerID,
		"name":          p.Name,
		"variety":       p.Variety,
		"region":        p.Region,
		"process":       p.Process,
		"grade":         p.Grade,
		"altitude_m":    p.AltitudeM,
		"harvest_year":  p.HarvestYear,
		"cupping_score": p.CuppingScore,
		"price_per_kg":  p.PricePerKg,
		"quantity_kg":   p.QuantityKg,
		"min_order_kg":  p.MinOrderKg,
		"description":   p.Description,
		"image_url":     p.ImageURL,
		"status":        p.Status,
	}
	if p.Farmer != nil {
		v["farmer_name"] = p.Farmer.Name
	}
	return v
}

func farmerView(f services.FarmerCard) map[string]any {
	return map[string]any{
		"user_id":        f.UserID,
		"farm_name":      f.FarmName,
		"region":         f.Region,
		"zone":           f.Zone,
		"altitude_m":     f.AltitudeM,
		"farm_size_ha":   f.FarmSizeHa,
		"certifications": f.Certifications,
		"bio":            f.Bio,
	}
}

func viewer(p graphql.ResolveParams) services.Viewer {
	return services.Viewer{
		UserID: middleware.UserIDFromCtx(p.Context),
		Role:   middleware.RoleFromCtx(p.Context),
	}
}

func stringArg(p graphql.ResolveParams, name string) string {
	s, _ := p.Args[name].(string)
	return s
}

// Schema builds the catalogue schema on top of products.
func Schema(products *services.ProductService) (graphql.Schema, error) {
	query := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"products": &graphql.Field{
				Type: graphql.NewList(productType),
				Args: graphql.FieldConfigArgument{
					"region":  &graphql.ArgumentConfig{Type: graphql.String},
					"process": &graphql.ArgumentConfig{Type: graphql.String},
					"q":       &graphql.ArgumentConfig{Type: graphql.String},
					"limit":   &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 20},
				},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					limit, _ := p.Args["limit"].(int)
					f := repositories.ProductFilter{
						Region:  stringArg(p, "region"),
						Process: stringArg(p, "process"),
						Q:       stringArg(p, "q"),
					}
					list, _, err := products.List(p.Context, viewer(p), f, 1, limit)
					if err != nil {
						return nil, err
					}
					out := make([]map[string]any, len(list))
					for i, item := range list {
						out[i] = productView(item)
					}
					return out, nil
				},
			},
			"product": &graphql.Field{
				Type: productType,
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
				},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					id, err := strconv.ParseUint(stringArg(p, "id"), 10, 64)
					if err != nil || id == 0 {
						return nil, nil
					}
					item, err := products.Get(p.Context, viewer(p), uint(id))
					if errors.Is(err, services.ErrNotFound) {
						return nil, nil
					}
					if err != nil {
						return nil, err
					}
					return productView(item), nil
				},
			},
			"farmers": &graphql.Field{
				Type: graphql.NewList(farmerType),
				Args: graphql.FieldConfigArgument{
					"region": &graphql.ArgumentConfig{Type: graphql.String},
				},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					cards, err := products.Farmers(p.Context, stringArg(p, "region"))
					if err != nil {
						return nil, err
					}
					out := make([]map[string]any, len(cards))
					for i, c := range cards {
						out[i] = farmerView(c)
					}
					return out, nil
				},
			},
		},
	})
	return gql.NewSchema(query)
}

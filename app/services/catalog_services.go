package services

import "context"

const maxFarmerCards = 100

// FarmerCard is the public face of a farm.
type FarmerCard struct {
	UserID         uint    `json:"user_id"`
	FarmName       string  `json:"farm_name"`
	Region         string  `json:"region"`
	Zone           string  `json:"zone"`
	AltitudeM      int     `json:"altitude_m"`
	FarmSizeHa     float64 `json:"farm_size_ha"`
	Certifications string  `json:"certifications"`
	Bio            string  `json:"bio"`
}

// Farmers lists approved farms, optionally in one region.
func (s *ProductService) Farmers(ctx context.Context, region string) ([]FarmerCard, error) {
	farmers, err := s.users.FarmersInRegion(ctx, region, maxFarmerCards)
	if err != nil {
		return nil, err
	}
	cards := make([]FarmerCard, len(farmers))
	for i, f := range farmers {
		cards[i] = FarmerCard{
			UserID:         f.UserID,
			FarmName:       f.FarmName,
			Region:         f.Region,
			Zone:           f.Zone,
			AltitudeM:      f.AltitudeM,
			FarmSizeHa:     f.FarmSizeHa,
			Certifications: f.Certifications,
			Bio:            f.Bio,
		}
	}
	return cards, nil
}

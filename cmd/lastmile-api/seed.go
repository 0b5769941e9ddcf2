package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"lastmile/internal/modules/availability"
	"lastmile/internal/modules/driver"
	"lastmile/internal/modules/location"
	"lastmile/internal/modules/pricing"
)

// seedFile is the dev fixture format for the memory backend.
type seedFile struct {
	Locations    []location.Location `json:"locations"`
	Drivers      []driver.Driver     `json:"drivers"`
	Availability []availability.Row  `json:"availability"`
	PriceTables  []pricing.Entry     `json:"price_tables"`
}

func loadSeed(ctx context.Context, path string, prices *pricing.MemoryCatalog, drivers *driver.MemoryDirectory, locations *location.MemoryDirectory, avail *availability.MemorySource) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed: %w", err)
	}
	var seed seedFile
	if err := json.Unmarshal(raw, &seed); err != nil {
		return fmt.Errorf("parse seed %s: %w", path, err)
	}
	for _, l := range seed.Locations {
		locations.Put(l)
	}
	for _, d := range seed.Drivers {
		drivers.Put(d)
	}
	avail.Add(seed.Availability...)
	svc := pricing.NewService(prices)
	for _, e := range seed.PriceTables {
		if _, err := svc.PublishVersion(ctx, e); err != nil {
			return fmt.Errorf("seed price table %s/%s: %w", e.Station, e.ServiceType, err)
		}
	}
	return nil
}

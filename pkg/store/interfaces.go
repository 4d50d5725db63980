package store

import (
	"context"

	"sightline/pkg/model"
)

// StationStore handles ground station persistence.
type StationStore interface {
	GetStation(ctx context.Context, id int64) (*model.Station, error)
	ListStations(ctx context.Context) ([]model.Station, error)
	SaveStation(ctx context.Context, st *model.Station) error
	DeleteStation(ctx context.Context, id int64) error
	// ReplaceStations swaps every station imported from source for the
	// given set in one transaction.
	ReplaceStations(ctx context.Context, source string, stations []model.Station) error
}

// FlightPathStore handles flight plan persistence.
type FlightPathStore interface {
	GetFlightPath(ctx context.Context, id int64) (*model.FlightPath, error)
	ListFlightPaths(ctx context.Context) ([]model.FlightPath, error)
	SaveFlightPath(ctx context.Context, fp *model.FlightPath) error
	DeleteFlightPath(ctx context.Context, id int64) error
}

// StateStore handles persistent application state.
type StateStore interface {
	GetState(ctx context.Context, key string) (string, bool)
	SetState(ctx context.Context, key, val string) error
	DeleteState(ctx context.Context, key string) error
}

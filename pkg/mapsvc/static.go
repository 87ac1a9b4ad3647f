package mapsvc

import (
	"context"

	"github.com/rubiojr/pinmap/pkg/geo"
)

// StaticPosition always reports the same configured fix.
type StaticPosition geo.Coords

func (s StaticPosition) Position(ctx context.Context) (geo.Coords, error) {
	if err := ctx.Err(); err != nil {
		return geo.Coords{}, err
	}
	return geo.Coords(s), nil
}

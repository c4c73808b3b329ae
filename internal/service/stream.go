package service

import (
	"context"
	"log/slog"

	"github.com/sakif/socialhub/internal/repository"
)

// mapStream turns a live query into a stream of decoded, ordered values.
//
// Every emission is the complete current list, never a patch. A document that
// fails to decode is logged and left out; the rest of the emission goes
// through. The output closes when the input closes or ctx ends.
func mapStream[T any](
	ctx context.Context,
	in <-chan []repository.Snapshot,
	decode func(repository.Snapshot) (T, error),
	order func([]T),
	logger *slog.Logger,
) <-chan []T {
	out := make(chan []T, 1)

	go func() {
		defer close(out)
		for {
			var snaps []repository.Snapshot
			select {
			case <-ctx.Done():
				return
			case s, ok := <-in:
				if !ok {
					return
				}
				snaps = s
			}

			items := decodeAll(snaps, decode, logger)
			if order != nil {
				order(items)
			}

			select {
			case out <- items:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}

func decodeAll[T any](snaps []repository.Snapshot, decode func(repository.Snapshot) (T, error), logger *slog.Logger) []T {
	items := make([]T, 0, len(snaps))
	for _, s := range snaps {
		v, err := decode(s)
		if err != nil {
			logger.Warn("skipping undecodable document",
				slog.String("collection", s.Collection),
				slog.String("id", s.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		items = append(items, v)
	}
	return items
}

package workspace

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Describe enumerates every table and its fields. Field fetches run
// concurrently; the result keeps host enumeration order.
func Describe(ctx context.Context, gw Gateway) ([]TableDescriptor, error) {
	logger := zerolog.Ctx(ctx)
	tables, err := gw.ListTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("error in ListTables: %w", err)
	}

	described := make([]TableDescriptor, len(tables))
	g, gctx := errgroup.WithContext(ctx)
	for i, t := range tables {
		i, t := i, t
		g.Go(func() error {
			fields, err := gw.ListFields(gctx, t.ID)
			if err != nil {
				return fmt.Errorf("error in ListFields for table '%s': %w", t.ID, err)
			}
			described[i] = TableDescriptor{
				ID:     t.ID,
				Name:   t.Name,
				Meta:   t.Meta,
				Fields: fields,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	logger.Debug().Int("tables", len(described)).Msg("described workspace")
	return described, nil
}

// TableNames returns the names of the described tables in order.
func TableNames(tables []TableDescriptor) []string {
	names := make([]string, 0, len(tables))
	for _, t := range tables {
		names = append(names, t.Name)
	}
	return names
}

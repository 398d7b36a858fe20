package app

import (
	"context"
	"fmt"

	"github.com/zoravur/orderfeed/internal/service"
	"github.com/zoravur/orderfeed/pkg/fakeorders"
)

const maxSeedEntries = 4

// Seed creates n open orders filled with fake entries, for demos. The same
// seed always produces the same orders.
func Seed(ctx context.Context, orders *service.Orders, seed int64, n int) error {
	gen := fakeorders.New(seed)
	for i := 0; i < n; i++ {
		o, err := orders.CreateOrder(ctx, gen.MenuURL())
		if err != nil {
			return fmt.Errorf("seed order: %w", err)
		}
		for j := 0; j < 1+i%maxSeedEntries; j++ {
			snap, err := orders.AddEntry(ctx, o.ID, gen.Entry())
			if err != nil {
				return fmt.Errorf("seed entry: %w", err)
			}
			if gen.Paid() {
				last := snap.Entries[len(snap.Entries)-1]
				if _, err := orders.SetEntryPaid(ctx, o.ID, last.ID, true); err != nil {
					return fmt.Errorf("seed paid: %w", err)
				}
			}
		}
	}
	return nil
}

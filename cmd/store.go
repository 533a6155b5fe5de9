package main

import (
	"context"

	"github.com/sells-group/medrag-cli/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	return store.Open(ctx, cfg.Store)
}

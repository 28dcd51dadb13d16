package storage

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// signConcurrency bounds parallel presign calls per page.
const signConcurrency = 8

// SignAll presigns keys concurrently and returns URLs in key order. A key that
// cannot be signed yields an empty URL; only a cancelled context fails the
// whole batch.
func SignAll(ctx context.Context, signer Signer, bucket string, keys []string, ttl time.Duration) ([]string, error) {
	urls := make([]string, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(signConcurrency)
	for i, key := range keys {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			u, err := signer.SignedURL(gctx, bucket, key, ttl)
			if err != nil {
				return nil
			}
			urls[i] = u
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return urls, nil
}

// Package batch fetches prices for several product codes at one store in
// parallel.
//
// The store is resolved once by the caller. Codes are queued to a bounded
// worker pool so a large basket cannot open more than MaxConcurrency
// upstream requests at a time. A failed code does not abort the others:
// every code gets exactly one Result, in request order.
//
// Example usage:
//
//	fetcher := batch.NewFetcher(batch.DefaultConfig())
//	results := fetcher.FetchAll(ctx, upcs, func(ctx context.Context, upc string) (*product.Quote, error) {
//		return svc.LookupAt(ctx, upc, zip, storeID)
//	})
package batch

// Package rules keeps the set of routing keys currently claimed for this
// worker, as published by the routing-rules API.
//
// The package has three parts:
//   - Client fetches the active routing keys for the configured baseline
//     identity and, for sandboxes, the destination sandbox name.
//   - Cache holds an immutable snapshot of those keys. Readers on the
//     dispatch path call CurrentKeys, which never blocks. EnsureFresh
//     refreshes a stale snapshot; concurrent refreshes coalesce onto a
//     single in-flight fetch.
//   - Refresher keeps the cache fresh in the background on a fixed interval.
//
// Example usage:
//
//	client, err := rules.NewClient(rules.ClientConfig{
//	    BaseURL:     "http://routes-api:8081",
//	    Baseline:    rules.Identity{Kind: "Deployment", Namespace: "temporal", Name: "worker"},
//	    SandboxName: "canary1",
//	})
//	cache := rules.NewCache(rules.CacheConfig{Source: client, RefreshInterval: 5 * time.Second})
//	go rules.NewRefresher(cache, 5*time.Second, logger).Run(ctx)
//
//	keys := cache.CurrentKeys()
//	if keys.Contains("canary1") { ... }
//
// A failed fetch (transport error, timeout, non-2xx status, malformed body)
// never changes the snapshot; it is logged and the previous keys stay in
// effect until a later fetch succeeds.
package rules

// Package ratelimit throttles requests per client IP with token buckets
// from golang.org/x/time/rate.
//
// The server uses it on POST /auth/login to slow password guessing. State
// is in memory and per instance; it does not help against attackers spread
// over many addresses.
package ratelimit

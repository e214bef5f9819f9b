// Package broadcast sends one message per cycle to every configured
// target.
//
// One message is drawn uniformly at random from the pool and shared by
// all targets in the cycle. Targets are processed strictly in the order
// supplied, one at a time: sequential sends respect API rate limits on
// the far side and keep per-target attempt counts deterministic for a
// given failure pattern. A target that exhausts its retry budget is
// recorded as failed and the batch moves on; no target's outcome affects
// another's.
package broadcast

// Package cpubsub contains in-application producers
// for the cancelable package.
//
// [Broadcaster] is a single publisher with many concurrent subscribers,
// who all observe the same sequence of values from the point they subscribed.
// [ChannelSource] adapts a Go channel to a single-subscription producer.
package cpubsub

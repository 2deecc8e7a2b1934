// Package resolver fetches pinned build-time artifacts from an ordered list of Maven-layout repositories.
// The first repository that contains a coordinate wins; downloads are checksummed against a YAML lockfile
// and remembered in a bbolt index so repeated runs don't hit the network.
package resolver

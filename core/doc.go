// Package core holds the turns domain contracts, configuration, error
// taxonomy and the rotation use-cases. Transport, storage and platform
// adapters depend on this package; core depends only on rotation.
package core

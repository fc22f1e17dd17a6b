// Package screensaver keeps the in-memory presentation order used by display clients.
//
// The rotation is a cache over the image catalog: it is seeded with Replace, kept in step with
// catalog writes through Insert/Rename/Delete, and rebuilt whenever the catalog changes out of
// band. Nothing here is persisted.
package screensaver

// Image is a single catalog entry as seen by the rotation.
//
// Name is the identity used by every rotation operation; Width and Height are carried along for
// display clients.
type Image struct {
	Name   string `json:"fileName"`
	Width  uint32 `json:"width"`
	Height uint32 `json:"height"`
}

// ResolveState is the outcome of confirming that a client finished showing an image.
type ResolveState string

const (
	// ResolveResolved means the image was current and the rotation advanced.
	ResolveResolved ResolveState = "resolved"
	// ResolveNotCurrent means the image is not the current one (stale or duplicate confirmation).
	ResolveNotCurrent ResolveState = "notCurrent"
	// ResolveNoImages means the rotation is empty.
	ResolveNoImages ResolveState = "noImages"
)

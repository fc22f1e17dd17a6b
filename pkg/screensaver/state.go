package screensaver

import (
	"slices"
	"sort"
)

// State is the single-threaded rotation.
//
// images holds one full presentation cycle and current points into it. The invariants below
// hold before and after every exported method:
//   - images is empty if and only if current is -1.
//   - current, when set, is a valid index into images.
//   - no two images share a Name.
//   - after a wrap with at least two images, the image shown before the wrap is not the first
//     image shown after it.
//
// Failing operations leave the state untouched. Use Manager for concurrent access.
type State struct {
	images  []Image
	names   map[string]struct{}
	current int
	rng     Randomness

	wraps uint64
}

// NewState creates an empty rotation. A nil rng falls back to NewDefaultRandomness.
func NewState(rng Randomness) *State {
	if rng == nil {
		rng = NewDefaultRandomness()
	}
	return &State{
		names:   make(map[string]struct{}),
		current: -1,
		rng:     rng,
	}
}

// Functions that keep the state unchanged.

// Current returns a copy of the current image, or false when the rotation is empty.
func (s *State) Current() (Image, bool) {
	if s.current < 0 {
		return Image{}, false
	}
	return s.images[s.current], true
}

// Len returns the number of images in the cycle.
func (s *State) Len() int {
	return len(s.images)
}

// Wraps returns how many times the cycle has been reshuffled by Resolve or Delete.
func (s *State) Wraps() uint64 {
	return s.wraps
}

func (s *State) position(name string) int {
	return slices.IndexFunc(s.images, func(img Image) bool {
		return img.Name == name
	})
}

// Functions that change the state.

// Resolve confirms that name was shown and advances the rotation.
//
// Only the current image can be resolved. Resolving the last image of a cycle reshuffles the
// whole cycle and starts over, never with the image that was just resolved.
func (s *State) Resolve(name string) ResolveState {
	if s.current < 0 {
		return ResolveNoImages
	}
	if s.images[s.current].Name != name {
		return ResolveNotCurrent
	}

	if next := s.current + 1; next < len(s.images) {
		s.current = next
		return ResolveResolved
	}

	s.wrap(name)
	return ResolveResolved
}

// Insert adds img at a random position among the images not yet shown in this cycle.
func (s *State) Insert(img Image) error {
	if _, exists := s.names[img.Name]; exists {
		return &ConflictError{Keys: []string{img.Name}}
	}
	s.insert(img)
	return nil
}

// InsertMany inserts every image or none of them.
//
// Map keys are the image names; the stored Image takes its Name from the key. When any key is
// already present the returned *ConflictError lists all of them in sorted order.
func (s *State) InsertMany(images map[string]Image) error {
	keys := sortedKeys(images)

	var conflicts []string
	for _, key := range keys {
		if _, exists := s.names[key]; exists {
			conflicts = append(conflicts, key)
		}
	}
	if len(conflicts) > 0 {
		return &ConflictError{Keys: conflicts}
	}

	for _, key := range keys {
		img := images[key]
		img.Name = key
		s.insert(img)
	}
	return nil
}

// Rename changes an image's name in place. Its position in the cycle does not move.
func (s *State) Rename(oldName, newName string) error {
	idx := s.position(oldName)
	if idx < 0 {
		return &notFoundError{name: oldName}
	}
	if oldName == newName {
		return nil
	}
	if _, exists := s.names[newName]; exists {
		return &ConflictError{Keys: []string{newName}}
	}

	s.images[idx].Name = newName
	delete(s.names, oldName)
	s.names[newName] = struct{}{}
	return nil
}

// Delete removes an image.
//
// The current image stays current unless it is the one removed, in which case the next image
// takes its place. Removing the current image at the end of a cycle wraps like Resolve does.
func (s *State) Delete(name string) error {
	idx := s.position(name)
	if idx < 0 {
		return &notFoundError{name: name}
	}

	current := s.current
	currentName := s.images[current].Name
	if idx < current {
		current--
	}

	s.images = slices.Delete(s.images, idx, idx+1)
	delete(s.names, name)

	switch {
	case len(s.images) == 0:
		s.current = -1
	case current >= len(s.images):
		s.wrap(currentName)
	default:
		s.current = current
	}
	return nil
}

// Clear empties the rotation.
func (s *State) Clear() {
	s.images = nil
	s.names = make(map[string]struct{})
	s.current = -1
}

// Replace discards the cycle and starts a freshly shuffled one over images.
//
// Map keys are the image names. The first image of the new cycle is never the image that was
// current before the call, unless it is the only image.
func (s *State) Replace(images map[string]Image) {
	previous, hadPrevious := s.Current()
	if len(images) == 0 {
		s.Clear()
		return
	}

	next := make([]Image, 0, len(images))
	names := make(map[string]struct{}, len(images))
	for _, key := range sortedKeys(images) {
		img := images[key]
		img.Name = key
		next = append(next, img)
		names[key] = struct{}{}
	}
	s.rng.Shuffle(len(next), func(i, j int) {
		next[i], next[j] = next[j], next[i]
	})

	s.images = next
	s.names = names
	s.current = 0
	if hadPrevious {
		s.avoidBoundaryDuplicate(previous.Name)
	}
}

func (s *State) insert(img Image) {
	s.images = append(s.images, img)
	s.names[img.Name] = struct{}{}

	if s.current < 0 {
		s.current = 0
		return
	}

	// Everything up to and including current is already shown or showing.
	last := len(s.images) - 1
	first := s.current + 1
	if last-first+1 >= 2 {
		target := between(s.rng, first, last)
		s.images[last], s.images[target] = s.images[target], s.images[last]
	}
}

func (s *State) wrap(previous string) {
	s.rng.Shuffle(len(s.images), func(i, j int) {
		s.images[i], s.images[j] = s.images[j], s.images[i]
	})
	s.current = 0
	s.wraps++
	s.avoidBoundaryDuplicate(previous)
}

// avoidBoundaryDuplicate moves previous away from the front of a freshly shuffled cycle with a
// single swap.
func (s *State) avoidBoundaryDuplicate(previous string) {
	n := len(s.images)
	if n < 2 || s.images[0].Name != previous {
		return
	}
	target := between(s.rng, 1, n-1)
	s.images[0], s.images[target] = s.images[target], s.images[0]
}

func sortedKeys(images map[string]Image) []string {
	keys := make([]string, 0, len(images))
	for key := range images {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

package screensaver

import (
	"errors"
	"maps"
	"slices"
	"testing"

	"pgregory.net/rapid"
)

var namePool = []string{"a.jpg", "b.jpg", "c.png", "d.png", "e.gif", "f.gif", "g.jpg", "h.jpg"}

func genName() *rapid.Generator[string] {
	return rapid.SampledFrom(namePool)
}

func genImageSet(minLen int) *rapid.Generator[map[string]Image] {
	return rapid.Custom(func(t *rapid.T) map[string]Image {
		keys := rapid.SliceOfNDistinct(genName(), minLen, len(namePool), rapid.ID[string]).Draw(t, "keys")
		out := make(map[string]Image, len(keys))
		for _, key := range keys {
			out[key] = Image{
				Name:   key,
				Width:  rapid.Uint32Range(1, 4096).Draw(t, "width"),
				Height: rapid.Uint32Range(1, 4096).Draw(t, "height"),
			}
		}
		return out
	})
}

// Property 1: no sequence of operations ever produces duplicate names or breaks the
// current-index invariants, and failed operations leave the rotation untouched.
func TestProperty1_OperationsPreserveInvariants(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := NewState(NewRandomness(rapid.Uint64().Draw(t, "seed")))

		steps := rapid.IntRange(1, 60).Draw(t, "steps")
		for range steps {
			before := slices.Clone(names(s))
			beforeCurrent := s.current

			var err error
			switch rapid.IntRange(0, 6).Draw(t, "op") {
			case 0:
				err = s.Insert(Image{Name: genName().Draw(t, "name")})
			case 1:
				err = s.InsertMany(genImageSet(0).Draw(t, "batch"))
			case 2:
				err = s.Rename(genName().Draw(t, "old"), genName().Draw(t, "new"))
			case 3:
				err = s.Delete(genName().Draw(t, "name"))
			case 4:
				if current, ok := s.Current(); ok {
					s.Resolve(current.Name)
				}
			case 5:
				s.Replace(genImageSet(0).Draw(t, "replacement"))
			case 6:
				s.Resolve(genName().Draw(t, "name"))
			}

			if err != nil {
				if !errors.Is(err, ErrConflict) && !errors.Is(err, ErrNotFound) {
					t.Fatalf("unexpected error: %v", err)
				}
				if !slices.Equal(before, names(s)) || beforeCurrent != s.current {
					t.Fatalf("failed operation mutated state: %v -> %v", before, names(s))
				}
			}

			requireInvariants(t, s)
		}
	})
}

// Property 2: across any number of full cycles, the last image of one cycle is never the
// first image of the next, and every image appears exactly once per cycle.
func TestProperty2_NoDuplicateAtWrap(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := NewState(NewRandomness(rapid.Uint64().Draw(t, "seed")))
		set := genImageSet(2).Draw(t, "images")
		s.Replace(set)

		cycles := rapid.IntRange(1, 5).Draw(t, "cycles")
		for range cycles {
			seen := make(map[string]struct{}, len(set))
			var last string
			for range len(set) {
				current, ok := s.Current()
				if !ok {
					t.Fatalf("rotation unexpectedly empty")
				}
				seen[current.Name] = struct{}{}
				last = current.Name
				if s.Resolve(current.Name) != ResolveResolved {
					t.Fatalf("resolving current %q failed", current.Name)
				}
			}
			if len(seen) != len(set) {
				t.Fatalf("cycle showed %d distinct images, want %d", len(seen), len(set))
			}
			next, _ := s.Current()
			if next.Name == last {
				t.Fatalf("image %q shown twice across a wrap", last)
			}
		}
	})
}

// Property 3: InsertMany with any conflicting name reports exactly the conflicting names and
// changes nothing.
func TestProperty3_InsertManyAllOrNothing(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := NewState(NewRandomness(rapid.Uint64().Draw(t, "seed")))
		existing := genImageSet(1).Draw(t, "existing")
		s.Replace(existing)
		before := slices.Clone(names(s))
		beforeCurrent := s.current

		batch := genImageSet(1).Draw(t, "batch")
		var want []string
		for key := range batch {
			if _, ok := existing[key]; ok {
				want = append(want, key)
			}
		}
		slices.Sort(want)

		err := s.InsertMany(batch)
		if len(want) == 0 {
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if s.Len() != len(existing)+len(batch) {
				t.Fatalf("len = %d, want %d", s.Len(), len(existing)+len(batch))
			}
			return
		}

		var conflict *ConflictError
		if !errors.As(err, &conflict) {
			t.Fatalf("expected ConflictError, got %v", err)
		}
		if !slices.Equal(want, conflict.Keys) {
			t.Fatalf("conflict keys = %v, want %v", conflict.Keys, want)
		}
		if !slices.Equal(before, names(s)) || beforeCurrent != s.current {
			t.Fatalf("InsertMany conflict mutated state")
		}
	})
}

// Property 4: Replace always yields exactly the given set, starting on an image other than
// the previous current one whenever that is possible.
func TestProperty4_ReplaceYieldsGivenSet(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := NewState(NewRandomness(rapid.Uint64().Draw(t, "seed")))
		s.Replace(genImageSet(0).Draw(t, "first"))
		previous, hadPrevious := s.Current()

		next := genImageSet(0).Draw(t, "next")
		s.Replace(next)

		got := slices.Sorted(slices.Values(names(s)))
		want := slices.Sorted(maps.Keys(next))
		if !slices.Equal(got, want) {
			t.Fatalf("names = %v, want %v", got, want)
		}
		current, ok := s.Current()
		if ok != (len(next) > 0) {
			t.Fatalf("current present = %v with %d images", ok, len(next))
		}
		if ok && hadPrevious && len(next) >= 2 && current.Name == previous.Name {
			t.Fatalf("replace started on previous current %q", previous.Name)
		}
	})
}

package resolve

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindPriorGreatestNotAbove(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 50; round++ {
		s := NewInstances()
		lods := rng.Perm(12)[:1+rng.Intn(6)]
		for _, l := range lods {
			require.True(t, s.Register("m", l, "ref"))
		}
		for q := -1; q < 13; q++ {
			want := -1
			for _, l := range lods {
				if l <= q && l > want {
					want = l
				}
			}
			got, found, known := s.FindPrior("m", q)
			assert.True(t, known)
			if want < 0 {
				assert.False(t, found, "q=%d lods=%v", q, lods)
				continue
			}
			require.True(t, found, "q=%d lods=%v", q, lods)
			assert.Equal(t, want, got.LOD)
		}
	}

	_, found, known := NewInstances().FindPrior("none", 5)
	assert.False(t, found)
	assert.False(t, known)
}

func TestRegisterDuplicateLODKeepsFirst(t *testing.T) {
	s := NewInstances()
	assert.True(t, s.Register("m", 3, "first"))
	assert.False(t, s.Register("m", 3, "second"))
	got, found, _ := s.FindPrior("m", 3)
	require.True(t, found)
	assert.Equal(t, "first", got.Reference)
	assert.Len(t, s.Snapshot()["m"], 1)
}

func TestOrphanClaimExactlyOnce(t *testing.T) {
	s := NewOrphans()
	s.Register("m", Orphan{LOD: 1, ArchiveName: "a1"})
	s.Register("m", Orphan{LOD: 3, ArchiveName: "a3"})
	assert.False(t, s.Register("m", Orphan{LOD: 3, ArchiveName: "dup"}))

	o, ok := s.Claim("m", 4)
	require.True(t, ok)
	assert.Equal(t, "a3", o.ArchiveName)

	o, ok = s.Claim("m", 4)
	require.True(t, ok)
	assert.Equal(t, "a1", o.ArchiveName)

	_, ok = s.Claim("m", 4)
	assert.False(t, ok)
	assert.Empty(t, s.Snapshot())
	assert.Equal(t, 0, s.Len())
}

func TestOrphanClaimConcurrent(t *testing.T) {
	s := NewOrphans()
	for l := 0; l < 8; l++ {
		s.Register("m", Orphan{LOD: l})
	}
	var mu sync.Mutex
	seen := map[int]int{}
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if o, ok := s.Claim("m", 10); ok {
				mu.Lock()
				seen[o.LOD]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 8)
	for lod, n := range seen {
		assert.Equal(t, 1, n, "lod %d claimed twice", lod)
	}
}

func TestScenarioPriorInstance(t *testing.T) {
	r := New()
	r.Instances.Register("tree_01", 2, "tree_01.zip/oak.flt")
	d := r.Resolve(Request{Key: "tree_01", LOD: 4}, Policy{}, nil)
	assert.Equal(t, SourcePrior, d.Source)
	assert.True(t, d.Valid)
	assert.Equal(t, "tree_01.zip/oak.flt", d.Reference)
	assert.Equal(t, 2, d.Prior.LOD)
}

func TestScenarioOrphanClaim(t *testing.T) {
	r := New()
	r.Orphans.Register("house_03", Orphan{LOD: 1, ModelZip: "houses.zip", ArchiveName: "x_house_03.flt"})
	exists := func(p string) bool { return p == "houses.zip" }

	d := r.Resolve(Request{Key: "house_03", LOD: 3}, Policy{}, exists)
	assert.Equal(t, SourceOrphan, d.Source)
	assert.True(t, d.Valid)
	assert.Equal(t, "houses.zip", d.Orphan.ModelZip)

	_, ok := r.Orphans.Claim("house_03", 3)
	assert.False(t, ok)
	inst, found, _ := r.Instances.FindPrior("house_03", 3)
	require.True(t, found)
	assert.Equal(t, "x_house_03.flt", inst.Reference)
}

func TestOrphanFailingValidationIsInvalidAndConsumed(t *testing.T) {
	r := New()
	r.Orphans.Register("m", Orphan{LOD: 0, ModelZip: "gone.zip"})
	d := r.Resolve(Request{Key: "m", LOD: 2}, Policy{}, func(string) bool { return false })
	assert.Equal(t, SourceOrphan, d.Source)
	assert.False(t, d.Valid)
	assert.Equal(t, 0, r.Orphans.Len())
	assert.False(t, r.Instances.Known("m"))
}

func TestScenarioNoSecondReference(t *testing.T) {
	r := New()
	r.Instances.Register("car_05", 2, "car.flt")
	d := r.Resolve(Request{Key: "car_05", LOD: 5}, Policy{NoSecondRef: true}, nil)
	assert.Equal(t, SourcePrior, d.Source)
	assert.False(t, d.Valid)
}

func TestNoSecondReferenceDoesNotBlockOrphans(t *testing.T) {
	r := New()
	r.Orphans.Register("m", Orphan{LOD: 1, ModelZip: "z"})
	d := r.Resolve(Request{Key: "m", LOD: 3}, Policy{NoSecondRef: true}, func(string) bool { return true })
	assert.Equal(t, SourceOrphan, d.Source)
	assert.True(t, d.Valid)
}

func TestHigherLODNeverReferenced(t *testing.T) {
	r := New()
	r.Instances.Register("m", 6, "hi.flt")
	d := r.Resolve(Request{Key: "m", LOD: 4}, Policy{}, nil)
	assert.Equal(t, SourceNone, d.Source)
	assert.False(t, d.Valid)
	assert.True(t, d.Known)
}

func TestLocalRegistersAndReportsLowerInstance(t *testing.T) {
	r := New()
	r.Instances.Register("m", 1, "low.flt")
	req := Request{Key: "m", LOD: 3, Local: true, LocalRef: "tile3_m.flt"}
	first := r.Resolve(req, Policy{NoSecondRef: true}, nil)
	second := r.Resolve(req, Policy{NoSecondRef: true}, nil)
	assert.Equal(t, first, second)
	assert.True(t, first.Valid)
	assert.True(t, first.HasPrior)
	assert.Equal(t, "low.flt", first.Prior.Reference)

	inst, _, _ := r.Instances.FindPrior("m", 3)
	assert.Equal(t, "tile3_m.flt", inst.Reference)
}

func TestResolveIdempotentWithoutRegistrationChanges(t *testing.T) {
	r := New()
	r.Instances.Register("m", 2, "ref")
	for _, p := range []Policy{{}, {NoSecondRef: true}} {
		a := r.Resolve(Request{Key: "m", LOD: 4}, p, nil)
		b := r.Resolve(Request{Key: "m", LOD: 4}, p, nil)
		assert.Equal(t, a, b)
	}
	a := r.Resolve(Request{Key: "none", LOD: 4}, Policy{}, nil)
	b := r.Resolve(Request{Key: "none", LOD: 4}, Policy{}, nil)
	assert.Equal(t, a, b)
}

func TestGeoTypicalBypassesTables(t *testing.T) {
	r := New()
	r.Instances.Register("m", 0, "ref")
	d := r.Resolve(Request{Key: "m", LOD: 2, GeoTypical: true}, Policy{}, nil)
	assert.False(t, d.Valid)
	d = r.Resolve(Request{Key: "g", LOD: 2, GeoTypical: true, Local: true, LocalRef: "g.flt"}, Policy{}, nil)
	assert.True(t, d.Valid)
	assert.False(t, r.Instances.Known("g"))
}

func TestRegisterUnclaimedSkipsKnown(t *testing.T) {
	r := New()
	r.Instances.Register("known", 1, "k")
	n := r.RegisterUnclaimed(2, "m.zip", "t.zip", map[string]string{
		"known": "hdr_known.flt",
		"lost":  "hdr_lost.flt",
	})
	assert.Equal(t, 1, n)
	snap := r.Orphans.Snapshot()
	require.Len(t, snap["lost"], 1)
	assert.Equal(t, Orphan{LOD: 2, ModelZip: "m.zip", ArchiveName: "hdr_lost.flt", TextureZip: "t.zip"}, snap["lost"][0])
	assert.Equal(t, 0, r.RegisterUnclaimed(2, "m.zip", "", map[string]string{"lost": "again.flt"}))
}

func TestLocalRegistrationRemovesSameLODOrphan(t *testing.T) {
	r := New()
	require.Equal(t, 1, r.RegisterUnclaimed(2, "a.zip", "", map[string]string{"K": "a_K.flt"}))
	d := r.Resolve(Request{Key: "K", LOD: 2, Local: true, LocalRef: "b_K.flt"}, Policy{NoSecondRef: true}, nil)
	assert.True(t, d.Valid)
	assert.Equal(t, 0, r.Orphans.Len())
	_, ok := r.Orphans.Claim("K", 2)
	assert.False(t, ok)
	inst, found, _ := r.Instances.FindPrior("K", 2)
	require.True(t, found)
	assert.Equal(t, "b_K.flt", inst.Reference)
}

func TestUnclaimedAfterLocalRegistrationSkipped(t *testing.T) {
	r := New()
	r.Resolve(Request{Key: "K", LOD: 2, Local: true, LocalRef: "b_K.flt"}, Policy{}, nil)
	assert.Equal(t, 0, r.RegisterUnclaimed(2, "a.zip", "", map[string]string{"K": "a_K.flt"}))
	assert.Equal(t, 0, r.Orphans.Len())
}

func TestInstanceAndOrphanNeverShareLODConcurrently(t *testing.T) {
	r := New()
	keys := make([]string, 200)
	for i := range keys {
		keys[i] = "k" + string(rune('a'+i%26)) + string(rune('a'+i/26))
	}
	var wg sync.WaitGroup
	for _, k := range keys {
		wg.Add(2)
		go func(k string) {
			defer wg.Done()
			r.RegisterUnclaimed(2, "a.zip", "", map[string]string{k: "a_" + k + ".flt"})
		}(k)
		go func(k string) {
			defer wg.Done()
			r.Resolve(Request{Key: k, LOD: 2, Local: true, LocalRef: "b_" + k + ".flt"}, Policy{}, nil)
		}(k)
	}
	wg.Wait()
	assert.Equal(t, len(keys), r.Instances.Len())
	assert.Equal(t, 0, r.Orphans.Len())
}

func TestClaimedOrphanStableOnRepeat(t *testing.T) {
	r := New()
	r.Orphans.Register("house", Orphan{LOD: 1, ModelZip: "low.zip", ArchiveName: "low_house.flt", TextureZip: "low_tex.zip"})
	exists := func(string) bool { return true }
	p := Policy{NoSecondRef: true}

	first := r.Resolve(Request{Key: "house", LOD: 2}, p, exists)
	require.Equal(t, SourceOrphan, first.Source)
	require.True(t, first.Valid)

	second := r.Resolve(Request{Key: "house", LOD: 2}, p, exists)
	assert.Equal(t, SourcePrior, second.Source)
	assert.True(t, second.Valid)
	assert.Equal(t, "low_house.flt", second.Reference)
	assert.Equal(t, "low.zip", second.Prior.Archive)
	assert.Equal(t, "low_tex.zip", second.Prior.Texture)

	// 更高 LOD 仍受二次引用约束
	third := r.Resolve(Request{Key: "house", LOD: 3}, p, exists)
	assert.Equal(t, SourcePrior, third.Source)
	assert.False(t, third.Valid)
}

func TestOrphansRemove(t *testing.T) {
	s := NewOrphans()
	s.Register("m", Orphan{LOD: 1})
	s.Register("m", Orphan{LOD: 2})
	assert.True(t, s.Remove("m", 1))
	assert.False(t, s.Remove("m", 1))
	assert.Equal(t, 1, s.Len())
	assert.True(t, s.Remove("m", 2))
	assert.Empty(t, s.Snapshot())
}

package voice

import (
	"slices"
	"testing"

	"github.com/nadzzz/voicestudio/internal/project"
)

func TestAssign_MaleOnlyFromMaleSubset(t *testing.T) {
	pool := DefaultPool()
	e := NewEngine(pool, 0)
	for i := 0; i < 500; i++ {
		v := e.Assign(project.GenderMale)
		if !slices.Contains(pool.Male, v) {
			t.Fatalf("male assignment %q outside male subset", v)
		}
	}
}

func TestAssign_FemaleAndNeutral(t *testing.T) {
	pool := DefaultPool()
	e := NewEngine(pool, 7)
	for i := 0; i < 200; i++ {
		if v := e.Assign(project.GenderFemale); !slices.Contains(pool.Female, v) {
			t.Fatalf("female assignment %q outside female subset", v)
		}
		if v := e.Assign(project.GenderNeutral); !slices.Contains(pool.All, v) {
			t.Fatalf("neutral assignment %q outside pool", v)
		}
	}
}

func TestAssign_SeededIsDeterministic(t *testing.T) {
	a := NewEngine(DefaultPool(), 42)
	b := NewEngine(DefaultPool(), 42)
	for i := 0; i < 20; i++ {
		g := []project.Gender{project.GenderMale, project.GenderFemale, project.GenderNeutral}[i%3]
		if x, y := a.Assign(g), b.Assign(g); x != y {
			t.Fatalf("draw %d: %q != %q", i, x, y)
		}
	}
}

func TestAssign_EmptyPools(t *testing.T) {
	if v := NewEngine(Pool{}, 1).Assign(project.GenderMale); v != "" {
		t.Errorf("empty pool returned %q", v)
	}
	// No male voices: widen to the full pool rather than fail.
	e := NewEngine(Pool{All: []string{"Kate"}, Female: []string{"Kate"}}, 1)
	if v := e.Assign(project.GenderMale); v != "Kate" {
		t.Errorf("got %q, want Kate", v)
	}
}

func TestPoolFromCatalog(t *testing.T) {
	p := PoolFromCatalog([]Info{
		{ID: "v1", Name: "Zed", Gender: "Male"},
		{ID: "v2", Name: "Ivy", Gender: "female"},
		{ID: "v3", Gender: "unknown"},
		{ID: "v4", Name: "Zed", Gender: "male"},
	})
	if !slices.Equal(p.All, []string{"Zed", "Ivy", "v3"}) {
		t.Errorf("All = %v", p.All)
	}
	if !slices.Equal(p.Male, []string{"Zed"}) || !slices.Equal(p.Female, []string{"Ivy"}) {
		t.Errorf("Male = %v Female = %v", p.Male, p.Female)
	}
}

func TestFillMissing(t *testing.T) {
	p := project.New()
	if _, err := p.AddCharacter(project.Character{ID: "bob", Gender: project.GenderMale}); err != nil {
		t.Fatal(err)
	}
	e := NewEngine(DefaultPool(), 3)
	if n := e.FillMissing(p); n != 1 {
		t.Fatalf("filled %d, want 1", n)
	}
	bob, _ := p.Character("bob")
	if !slices.Contains(DefaultPool().Male, bob.Voice) {
		t.Errorf("bob voice = %q", bob.Voice)
	}
	if n, _ := p.Character(project.NarratorID); n.Voice != "Alice" {
		t.Errorf("narrator voice changed to %q", n.Voice)
	}
}

// Package voice assigns voice identities to characters.
//
// The pool is partitioned into male- and female-eligible subsets; neutral
// characters draw from the whole pool. Selection within a subset is uniform
// over a seedable source so that tests (and the CLI --seed flag) get
// reproducible assignments.
package voice

import (
	"math/rand/v2"
	"slices"
	"strings"
	"sync"

	"github.com/nadzzz/voicestudio/internal/project"
)

// Info describes one voice of the remote catalog.
type Info struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Gender      string `json:"gender"`
	Description string `json:"description,omitempty"`
}

// Pool is the set of assignable voices and its gender partitions.
type Pool struct {
	All    []string
	Male   []string
	Female []string
}

// DefaultPool returns the built-in 28 voice catalog.
func DefaultPool() Pool {
	return Pool{
		All: []string{
			"Aaron", "Abigail", "Adrian", "Alexander", "Alice", "Aria", "Austin",
			"Bella", "Brian", "Caroline", "Connor", "David", "Emily", "Emma",
			"Grace", "Henry", "James", "Jordan", "Kate", "Kevin", "Liam",
			"Madison", "Michael", "Natalie", "Oliver", "Rachel", "Ryan", "Sophia",
		},
		Male: []string{
			"Aaron", "Adrian", "Alexander", "Austin", "Brian", "Connor", "David",
			"Henry", "James", "Jordan", "Kevin", "Liam", "Michael", "Oliver", "Ryan",
		},
		Female: []string{
			"Abigail", "Alice", "Aria", "Bella", "Caroline", "Emily", "Emma",
			"Grace", "Kate", "Madison", "Natalie", "Rachel", "Sophia",
		},
	}
}

// PoolFromCatalog builds a pool from the remote voice list. Voices are
// identified by name, falling back to id. Gender values other than male or
// female only land in All.
func PoolFromCatalog(voices []Info) Pool {
	var p Pool
	for _, v := range voices {
		name := v.Name
		if name == "" {
			name = v.ID
		}
		if name == "" || slices.Contains(p.All, name) {
			continue
		}
		p.All = append(p.All, name)
		switch strings.ToLower(v.Gender) {
		case "male", "m":
			p.Male = append(p.Male, name)
		case "female", "f":
			p.Female = append(p.Female, name)
		}
	}
	return p
}

// Eligible returns the voices a character of the given gender may receive.
// An empty gender subset widens to the whole pool.
func (p Pool) Eligible(g project.Gender) []string {
	var subset []string
	switch g {
	case project.GenderMale:
		subset = p.Male
	case project.GenderFemale:
		subset = p.Female
	}
	if len(subset) == 0 {
		return p.All
	}
	return subset
}

// Engine picks voices from a pool. It is safe for concurrent use.
type Engine struct {
	pool Pool

	mu  sync.Mutex
	rng *rand.Rand
}

// NewEngine returns an engine drawing from pool. A zero seed uses a random one.
func NewEngine(pool Pool, seed uint64) *Engine {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &Engine{pool: pool, rng: rand.New(rand.NewPCG(seed, seed>>1|1))}
}

// Pool returns the engine's voice pool.
func (e *Engine) Pool() Pool { return e.pool }

// Assign picks a voice for a declared gender. It returns "" only when the
// pool is empty.
func (e *Engine) Assign(g project.Gender) string {
	candidates := e.pool.Eligible(g)
	if len(candidates) == 0 {
		return ""
	}
	e.mu.Lock()
	i := e.rng.IntN(len(candidates))
	e.mu.Unlock()
	return candidates[i]
}

// AssignCharacter returns c with a freshly assigned voice.
func (e *Engine) AssignCharacter(c project.Character) project.Character {
	if v := e.Assign(c.Gender); v != "" {
		c.Voice = v
	}
	return c
}

// FillMissing assigns voices to every character of p that has none.
// It reports how many characters were changed.
func (e *Engine) FillMissing(p *project.Project) int {
	n := 0
	for _, c := range p.Characters() {
		if c.Voice != "" {
			continue
		}
		assigned := e.AssignCharacter(c)
		if assigned.Voice == "" {
			continue
		}
		if err := p.UpdateCharacter(c.ID, func(ch *project.Character) { ch.Voice = assigned.Voice }); err != nil {
			continue
		}
		n++
	}
	return n
}

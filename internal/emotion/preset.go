// Package emotion manages the library of named emotion presets and keeps a
// locally edited working set in sync with the remote emotion store.
package emotion

import (
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cast"
)

// Documented defaults for numeric fields that are missing or not numeric.
const (
	DefaultExaggeration = 1.0
	DefaultCFGWeight    = 0.5
	DefaultTemperature  = 0.8
	DefaultSpeed        = 1.0
)

// ID identifies a preset. It is either a client-only pending token for an
// entry the store has not acknowledged yet, or a server-issued id.
type ID struct {
	pending string
	server  string
}

// NewPendingID returns a fresh pending token.
func NewPendingID() ID { return ID{pending: uuid.NewString()} }

// PersistedID wraps a server-issued id.
func PersistedID(id string) ID { return ID{server: id} }

// IsPending reports whether the entry has never been created remotely.
func (id ID) IsPending() bool { return id.pending != "" }

// ServerID returns the server-issued id, if any.
func (id ID) ServerID() (string, bool) { return id.server, id.server != "" }

func (id ID) String() string {
	if id.IsPending() {
		return "pending:" + id.pending
	}
	return id.server
}

// Preset is a named bundle of emotion-shaping parameters.
type Preset struct {
	ID           ID
	Name         string
	Exaggeration float64
	CFGWeight    float64
	Temperature  float64
	Speed        float64

	// Category is empty when the store did not provide one.
	Category string
}

// NewPreset returns a preset carrying the documented defaults.
func NewPreset(name string) Preset {
	return Preset{
		Name:         name,
		Exaggeration: DefaultExaggeration,
		CFGWeight:    DefaultCFGWeight,
		Temperature:  DefaultTemperature,
		Speed:        DefaultSpeed,
	}
}

// Record is the wire shape sent to the store on create and update.
type Record struct {
	ID           string  `json:"id,omitempty"`
	Name         string  `json:"name"`
	Exaggeration float64 `json:"exaggeration"`
	CFGWeight    float64 `json:"cfg_weight"`
	Temperature  float64 `json:"temperature"`
	Speed        float64 `json:"speed"`
	Category     string  `json:"category,omitempty"`
}

// Record converts p to its wire shape. Pending ids are never sent.
func (p Preset) Record() Record {
	sid, _ := p.ID.ServerID()
	return Record{
		ID:           sid,
		Name:         p.Name,
		Exaggeration: p.Exaggeration,
		CFGWeight:    p.CFGWeight,
		Temperature:  p.Temperature,
		Speed:        p.Speed,
		Category:     p.Category,
	}
}

// Normalize converts the raw store listing into presets keyed by server id.
//
// The listing may be wrapped as {"emotions": {...}}. Within an entry the
// numeric fields are read from a nested "parameters" object first and from
// the entry itself second; anything missing or not a finite number takes the
// documented default. Category stays empty unless a string is present, and a
// missing name falls back to the id. Entries that are not objects are dropped.
func Normalize(raw map[string]any) map[string]Preset {
	if inner, ok := raw["emotions"].(map[string]any); ok {
		raw = inner
	}
	out := make(map[string]Preset, len(raw))
	for id, v := range raw {
		entry, ok := v.(map[string]any)
		if !ok {
			continue
		}
		params, _ := entry["parameters"].(map[string]any)
		field := func(key string) any {
			if params != nil {
				if v, ok := params[key]; ok && v != nil {
					return v
				}
			}
			return entry[key]
		}
		name, _ := entry["name"].(string)
		if name == "" {
			name = id
		}
		category, _ := field("category").(string)
		out[id] = Preset{
			ID:           PersistedID(id),
			Name:         name,
			Exaggeration: number(field("exaggeration"), DefaultExaggeration),
			CFGWeight:    number(field("cfg_weight"), DefaultCFGWeight),
			Temperature:  number(field("temperature"), DefaultTemperature),
			Speed:        number(field("speed"), DefaultSpeed),
			Category:     category,
		}
	}
	return out
}

func number(v any, def float64) float64 {
	switch x := v.(type) {
	case nil, bool:
		return def
	case string:
		v = strings.TrimSpace(x)
	}
	f, err := cast.ToFloat64E(v)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return def
	}
	return f
}

// Library is a read-only name index over a preset snapshot.
type Library struct {
	byName map[string]Preset
}

// NewLibrary indexes presets by name, case-insensitively. Server ids are
// indexed too, so a label may reference either.
func NewLibrary(presets []Preset) Library {
	l := Library{byName: make(map[string]Preset, len(presets)*2)}
	for _, p := range presets {
		if sid, ok := p.ID.ServerID(); ok {
			l.byName[strings.ToLower(sid)] = p
		}
	}
	for _, p := range presets {
		if p.Name != "" {
			l.byName[strings.ToLower(p.Name)] = p
		}
	}
	return l
}

// Lookup finds a preset by label.
func (l Library) Lookup(label string) (Preset, bool) {
	p, ok := l.byName[strings.ToLower(strings.TrimSpace(label))]
	return p, ok
}

// Len returns the number of distinct labels indexed.
func (l Library) Len() int { return len(l.byName) }

func sortPresets(ps []Preset) {
	sort.SliceStable(ps, func(i, j int) bool {
		a, b := strings.ToLower(ps[i].Name), strings.ToLower(ps[j].Name)
		if a != b {
			return a < b
		}
		return ps[i].ID.String() < ps[j].ID.String()
	})
}

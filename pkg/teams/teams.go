// Package teams provides the NBA team directory: canonical abbreviations,
// name resolution, and matchup parsing for free-form inputs.
package teams

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ErrUnknownTeam is returned when a query resolves to no NBA team.
var ErrUnknownTeam = errors.New("unknown team")

// Team is one NBA franchise.
type Team struct {
	Abbrev string `json:"abbrev"`
	City   string `json:"city"`
	Name   string `json:"name"`
}

// FullName returns "City Name".
func (t Team) FullName() string {
	return t.City + " " + t.Name
}

// nbaTeams is the canonical 30-team table.
var nbaTeams = []Team{
	{"ATL", "Atlanta", "Hawks"},
	{"BOS", "Boston", "Celtics"},
	{"BKN", "Brooklyn", "Nets"},
	{"CHA", "Charlotte", "Hornets"},
	{"CHI", "Chicago", "Bulls"},
	{"CLE", "Cleveland", "Cavaliers"},
	{"DAL", "Dallas", "Mavericks"},
	{"DEN", "Denver", "Nuggets"},
	{"DET", "Detroit", "Pistons"},
	{"GSW", "Golden State", "Warriors"},
	{"HOU", "Houston", "Rockets"},
	{"IND", "Indiana", "Pacers"},
	{"LAC", "Los Angeles", "Clippers"},
	{"LAL", "Los Angeles", "Lakers"},
	{"MEM", "Memphis", "Grizzlies"},
	{"MIA", "Miami", "Heat"},
	{"MIL", "Milwaukee", "Bucks"},
	{"MIN", "Minnesota", "Timberwolves"},
	{"NOP", "New Orleans", "Pelicans"},
	{"NYK", "New York", "Knicks"},
	{"OKC", "Oklahoma City", "Thunder"},
	{"ORL", "Orlando", "Magic"},
	{"PHI", "Philadelphia", "76ers"},
	{"PHX", "Phoenix", "Suns"},
	{"POR", "Portland", "Trail Blazers"},
	{"SAC", "Sacramento", "Kings"},
	{"SAS", "San Antonio", "Spurs"},
	{"TOR", "Toronto", "Raptors"},
	{"UTA", "Utah", "Jazz"},
	{"WAS", "Washington", "Wizards"},
}

// aliases maps common shorthand to abbreviations.
var aliases = map[string]string{
	"sixers":      "PHI",
	"blazers":     "POR",
	"wolves":      "MIN",
	"cavs":        "CLE",
	"mavs":        "DAL",
	"nola":        "NOP",
	"la lakers":   "LAL",
	"la clippers": "LAC",
	"ny knicks":   "NYK",
	"gs warriors": "GSW",
	"okc thunder": "OKC",
	"phx suns":    "PHX",
}

// Directory resolves free-form team queries to canonical teams.
type Directory struct {
	byAbbrev map[string]Team
	byKey    map[string]Team // normalized name/city/nickname -> team
}

// NewDirectory builds the lookup indexes over the static NBA table.
func NewDirectory() *Directory {
	d := &Directory{
		byAbbrev: make(map[string]Team, len(nbaTeams)),
		byKey:    make(map[string]Team, len(nbaTeams)*3),
	}
	for _, t := range nbaTeams {
		d.byAbbrev[t.Abbrev] = t
		d.byKey[Normalize(t.FullName())] = t
		d.byKey[Normalize(t.Name)] = t
		// City keys collide for the two LA teams; skip ambiguous cities.
		cityKey := Normalize(t.City)
		if _, dup := d.byKey[cityKey]; !dup && t.City != "Los Angeles" {
			d.byKey[cityKey] = t
		}
	}
	for alias, abbrev := range aliases {
		if t, ok := d.byAbbrev[abbrev]; ok {
			d.byKey[Normalize(alias)] = t
		}
	}
	return d
}

// All returns the full team table in abbreviation order.
func (d *Directory) All() []Team {
	out := make([]Team, len(nbaTeams))
	copy(out, nbaTeams)
	return out
}

// ByAbbrev looks up a team by its canonical abbreviation.
func (d *Directory) ByAbbrev(abbrev string) (Team, bool) {
	t, ok := d.byAbbrev[strings.ToUpper(strings.TrimSpace(abbrev))]
	return t, ok
}

// Resolve maps a free-form query (abbreviation, nickname, city, or full
// name, accent- and case-insensitive) to a team.
func (d *Directory) Resolve(query string) (Team, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return Team{}, fmt.Errorf("%w: empty query", ErrUnknownTeam)
	}

	if t, ok := d.byAbbrev[strings.ToUpper(q)]; ok {
		return t, nil
	}

	normalized := Normalize(q)
	if t, ok := d.byKey[normalized]; ok {
		return t, nil
	}

	// Partial match as a last resort: "portland trail" -> Trail Blazers.
	for key, t := range d.byKey {
		if strings.Contains(key, normalized) || strings.Contains(normalized, key) {
			return t, nil
		}
	}

	return Team{}, fmt.Errorf("%w: %q", ErrUnknownTeam, query)
}

// ParseMatchup splits strings like "Lakers vs Celtics" or "BOS @ NYK" into
// (away, home). The "@" form reads away-first; the "vs" form reads the
// first team as home, matching common schedule notation.
func (d *Directory) ParseMatchup(s string) (away, home Team, err error) {
	if idx := strings.Index(s, "@"); idx > 0 {
		away, err = d.Resolve(s[:idx])
		if err != nil {
			return Team{}, Team{}, err
		}
		home, err = d.Resolve(s[idx+1:])
		if err != nil {
			return Team{}, Team{}, err
		}
		return away, home, nil
	}

	vsPatterns := []string{" vs. ", " vs ", " v ", " v. "}
	lower := strings.ToLower(s)
	for _, pat := range vsPatterns {
		if idx := strings.Index(lower, pat); idx > 0 {
			home, err = d.Resolve(s[:idx])
			if err != nil {
				return Team{}, Team{}, err
			}
			away, err = d.Resolve(s[idx+len(pat):])
			if err != nil {
				return Team{}, Team{}, err
			}
			return away, home, nil
		}
	}

	return Team{}, Team{}, fmt.Errorf("no matchup separator in %q", s)
}

// Normalize lowercases a name, strips accents, and collapses whitespace.
func Normalize(name string) string {
	name = strings.ToLower(name)

	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	name, _, _ = transform.String(t, name)

	name = strings.Join(strings.Fields(name), " ")

	return strings.TrimSpace(name)
}

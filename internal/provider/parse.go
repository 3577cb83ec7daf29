package provider

import (
	"regexp"
	"sort"
	"strings"

	"github.com/sells-group/pharmacy-harvester/internal/model"
)

var (
	emailRe    = regexp.MustCompile(`(?i)[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}`)
	phoneRe    = regexp.MustCompile(`\+?\d[\d/\s\-().]{4,}\d`)
	phoneStrip = strings.NewReplacer("(", "", ")", "", " ", "", "\t", "", "/", "", "-", "")

	quotedNameRe  = regexp.MustCompile(`"([^"]+)"`)
	keywordNameRe = regexp.MustCompile(`(?i)\bApoteka\s+([^,;]+)`)
	streetRe      = regexp.MustCompile(`(?i)((?:Ulica|Ul\.|Bulevar|Trg|Put|Maršala|Mojsija|Nika|Vladimira)[^,;]+(?:\b(?:bb|br\.\s*\d+|\d+\w?)\b)?)`)
	montefarmRe   = regexp.MustCompile(`(?i)Pharmacy\s+(.+?)\s+([A-ZČĆĐŠŽ][\wšđžćč]+)$`)
	benuRe        = regexp.MustCompile(`(?i)BENU`)

	cityRe = buildCityRe()
)

// municipalities maps every accepted spelling to the canonical municipality name.
var municipalities = map[string]string{
	"andrijevica":  "Andrijevica",
	"bar":          "Bar",
	"berane":       "Berane",
	"bijelo polje": "Bijelo Polje",
	"budva":        "Budva",
	"cetinje":      "Cetinje",
	"danilovgrad":  "Danilovgrad",
	"gusinje":      "Gusinje",
	"herceg novi":  "Herceg Novi",
	"herceg-novi":  "Herceg Novi",
	"kolašin":      "Kolašin",
	"kolasin":      "Kolašin",
	"kotor":        "Kotor",
	"mojkovac":     "Mojkovac",
	"nikšić":       "Nikšić",
	"niksic":       "Nikšić",
	"petnjica":     "Petnjica",
	"plav":         "Plav",
	"pljevlja":     "Pljevlja",
	"plužine":      "Plužine",
	"pluzine":      "Plužine",
	"podgorica":    "Podgorica",
	"rožaje":       "Rožaje",
	"rozaje":       "Rožaje",
	"šavnik":       "Šavnik",
	"savnik":       "Šavnik",
	"tivat":        "Tivat",
	"tuzi":         "Tuzi",
	"ulcinj":       "Ulcinj",
	"žabljak":      "Žabljak",
	"zabljak":      "Žabljak",
	"zeta":         "Zeta",
	"golubovci":    "Golubovci",
}

// buildCityRe matches any municipality spelling bounded by non-letters.
// Go's \b is ASCII-only, so boundaries are spelled out to cope with Š, Ž.
func buildCityRe() *regexp.Regexp {
	names := make([]string, 0, len(municipalities))
	for k := range municipalities {
		names = append(names, regexp.QuoteMeta(k))
	}
	// Longest first so "bijelo polje" wins over a shorter prefix.
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})
	return regexp.MustCompile(`(?i)(?:^|[^\p{L}])(` + strings.Join(names, "|") + `)(?:[^\p{L}]|$)`)
}

// matchCity returns the canonical municipality named in s, or "".
func matchCity(s string) string {
	m := cityRe.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	return municipalities[strings.ToLower(m[1])]
}

// parseContacts extracts emails and phone numbers (7 to 15 digits) from s.
func parseContacts(s string) (emails, phones []string) {
	emails = unique(emailRe.FindAllString(s, -1))
	// Strip emails first so their digits are not read as phones.
	rest := emailRe.ReplaceAllString(s, " ")
	for _, raw := range phoneRe.FindAllString(rest, -1) {
		p := phoneStrip.Replace(raw)
		if len(p) < 7 || len(p) > 15 {
			continue
		}
		phones = append(phones, p)
	}
	return emails, unique(phones)
}

func unique(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := in[:0:0]
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// parseRegistryRow reads one health-fund registry line:
// quoted or "Apoteka X" name, street address, municipality.
func parseRegistryRow(line string) model.RegistryRow {
	row := model.RegistryRow{Raw: line, Source: model.SourceRegistry}
	if m := quotedNameRe.FindStringSubmatch(line); m != nil {
		row.Name = strings.TrimSpace(m[1])
	} else if m := keywordNameRe.FindStringSubmatch(line); m != nil {
		row.Name = "Apoteka " + strings.TrimSpace(m[1])
	}
	if m := streetRe.FindStringSubmatch(line); m != nil {
		row.Address = strings.TrimSpace(m[1])
	}
	row.City = matchCity(line)
	row.Emails, row.Phones = parseContacts(line)
	return row
}

// parseMontefarmRow reads a chain locator line of the form "Pharmacy <name> <City>".
func parseMontefarmRow(line string) model.RegistryRow {
	row := model.RegistryRow{Raw: line, Source: model.SourceChain}
	if m := montefarmRe.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
		row.Name = strings.TrimSpace(m[1])
		row.City = m[2]
		if c := matchCity(m[2]); c != "" {
			row.City = c
		}
	} else {
		row.City = matchCity(line)
	}
	row.Emails, row.Phones = parseContacts(line)
	return row
}

func parseBenuRow(line string) model.RegistryRow {
	row := model.RegistryRow{Raw: line, Source: model.SourceChain}
	if benuRe.MatchString(line) {
		row.Name = "BENU Apoteka"
	}
	row.City = matchCity(line)
	row.Emails, row.Phones = parseContacts(line)
	return row
}

// RowQuery returns the free text used to geocode a registry row.
func RowQuery(r model.RegistryRow) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{r.Name, r.Address, r.City} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return strings.TrimSpace(r.Raw)
	}
	return strings.Join(parts, ", ")
}

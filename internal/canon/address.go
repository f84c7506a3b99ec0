package canon

import (
    "regexp"
    "strings"
)

var (
    rePunct = regexp.MustCompile(`[^A-Za-z0-9#\s]`)
    reUnit  = regexp.MustCompile(`\s(?:APT|UNIT|STE|SUITE|#)\s*#?\s*([A-Z0-9-]+)$`)
)

// Address is a normalized US street address.
type Address struct {
    Line1 string
    City  string
    State string
    Zip   string
}

// Key identifies one dwelling. Units are kept: two condos in the same
// building are different listings.
func (a Address) Key() string {
    if a.Line1 == "" || a.City == "" || a.State == "" || a.Zip == "" {
        return ""
    }
    return strings.ToLower(a.Line1 + "|" + a.City + "|" + a.State + "|" + a.Zip)
}

// Canonicalize upper-cases, strips punctuation, applies USPS suffix
// abbreviations and folds unit designators into "UNIT n".
func Canonicalize(line1, city, state, zip string) Address {
    n1 := strings.ToUpper(strings.TrimSpace(line1))
    n1 = collapseSpaces(rePunct.ReplaceAllString(n1, " "))
    n1 = normalizeUnit(n1)
    n1 = abbreviateSuffix(n1)

    c := collapseSpaces(rePunct.ReplaceAllString(strings.ToUpper(strings.TrimSpace(city)), " "))
    st := strings.ToUpper(strings.TrimSpace(state))
    if len(st) > 2 { st = stateAbbrev(st) }
    return Address{Line1: n1, City: c, State: st, Zip: trimZIP(zip)}
}

func collapseSpaces(s string) string {
    return strings.Join(strings.Fields(s), " ")
}

func trimZIP(z string) string {
    z = strings.TrimSpace(z)
    if len(z) >= 5 { return z[:5] }
    return z
}

func normalizeUnit(s string) string {
    m := reUnit.FindStringSubmatchIndex(s)
    if m == nil { return s }
    return strings.TrimSpace(s[:m[0]]) + " UNIT " + s[m[2]:m[3]]
}

var suffixes = map[string]string{
    "STREET": "ST",
    "ROAD": "RD",
    "AVENUE": "AVE",
    "BOULEVARD": "BLVD",
    "DRIVE": "DR",
    "LANE": "LN",
    "COURT": "CT",
    "CIRCLE": "CIR",
    "TERRACE": "TER",
    "PLACE": "PL",
    "PARKWAY": "PKWY",
    "HIGHWAY": "HWY",
    "NORTH": "N",
    "SOUTH": "S",
    "EAST": "E",
    "WEST": "W",
}

// abbreviateSuffix works per word so "LANEVIEW" is left alone.
func abbreviateSuffix(s string) string {
    words := strings.Fields(s)
    for i, w := range words {
        if v, ok := suffixes[w]; ok { words[i] = v }
    }
    return strings.Join(words, " ")
}

func stateAbbrev(s string) string {
    m := map[string]string{
        "ALABAMA":"AL","ALASKA":"AK","ARIZONA":"AZ","ARKANSAS":"AR","CALIFORNIA":"CA","COLORADO":"CO","CONNECTICUT":"CT","DELAWARE":"DE","DISTRICT OF COLUMBIA":"DC","FLORIDA":"FL","GEORGIA":"GA","HAWAII":"HI","IDAHO":"ID","ILLINOIS":"IL","INDIANA":"IN","IOWA":"IA","KANSAS":"KS","KENTUCKY":"KY","LOUISIANA":"LA","MAINE":"ME","MARYLAND":"MD","MASSACHUSETTS":"MA","MICHIGAN":"MI","MINNESOTA":"MN","MISSISSIPPI":"MS","MISSOURI":"MO","MONTANA":"MT","NEBRASKA":"NE","NEVADA":"NV","NEW HAMPSHIRE":"NH","NEW JERSEY":"NJ","NEW MEXICO":"NM","NEW YORK":"NY","NORTH CAROLINA":"NC","NORTH DAKOTA":"ND","OHIO":"OH","OKLAHOMA":"OK","OREGON":"OR","PENNSYLVANIA":"PA","RHODE ISLAND":"RI","SOUTH CAROLINA":"SC","SOUTH DAKOTA":"SD","TENNESSEE":"TN","TEXAS":"TX","UTAH":"UT","VERMONT":"VT","VIRGINIA":"VA","WASHINGTON":"WA","WEST VIRGINIA":"WV","WISCONSIN":"WI","WYOMING":"WY",
    }
    if v, ok := m[s]; ok { return v }
    return s
}

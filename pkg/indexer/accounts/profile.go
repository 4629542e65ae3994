package accounts

import (
	"encoding/json"
	"fmt"

	"github.com/worth-network/worthx/pkg/normalize"
)

// Profile is the sanitized subset of an account's profile metadata.
type Profile struct {
	Name         string
	About        string
	Location     string
	Website      string
	ProfileImage string
	CoverImage   string
}

const (
	maxNameLen     = 20
	maxAboutLen    = 160
	maxLocationLen = 30
	maxWebsiteLen  = 100
	maxImageLen    = 1024
)

// ParseProfile reads the v2 profile from posting metadata, falling back to
// json_metadata. Malformed input yields an empty profile.
func ParseProfile(postingJSON, legacyJSON string) Profile {
	prof, ok := profileObject(postingJSON)
	if !ok || !isVersion2(prof["version"]) {
		prof, ok = profileObject(legacyJSON)
		if !ok {
			prof = nil
		}
	}

	name := charPolice(field(prof, "name"))
	about := charPolice(field(prof, "about"))
	location := charPolice(field(prof, "location"))
	website := field(prof, "website")
	profileImage := field(prof, "profile_image")
	coverImage := field(prof, "cover_image")

	name = normalize.Trunc(name, maxNameLen)
	about = normalize.Trunc(about, maxAboutLen)
	location = normalize.Trunc(location, maxLocationLen)

	if len(name) > 0 && name[0] == '@' {
		name = ""
	}
	if len(website) > maxWebsiteLen {
		website = ""
	}
	if website != "" && !normalize.HasHTTPScheme(website) {
		website = "http://" + website
	}

	return Profile{
		Name:         name,
		About:        about,
		Location:     location,
		Website:      website,
		ProfileImage: imageURL(profileImage),
		CoverImage:   imageURL(coverImage),
	}
}

func profileObject(raw string) (map[string]any, bool) {
	if raw == "" {
		return nil, false
	}
	var md map[string]any
	if err := json.Unmarshal([]byte(raw), &md); err != nil {
		return nil, false
	}
	prof, ok := md["profile"].(map[string]any)
	return prof, ok
}

func isVersion2(v any) bool {
	n, ok := v.(float64)
	return ok && n == 2
}

// field stringifies a present value the way a loose metadata reader would.
func field(prof map[string]any, key string) string {
	v, ok := prof[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64, bool:
		return fmt.Sprint(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// charPolice drops strings Postgres text cannot hold.
func charPolice(s string) string {
	if normalize.HasNUL(s) {
		return ""
	}
	return s
}

func imageURL(url string) string {
	if url == "" || !normalize.HasHTTPScheme(url) || len(url) > maxImageLen {
		return ""
	}
	return url
}

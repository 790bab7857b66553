// Package voice holds the static catalog of Kokoro English voices.
//
// A voice identifier encodes its language variant in the first character
// ("a" American English, "b" British English) and its gender in the second
// ("f" female, "m" male), e.g. "af_heart" or "bm_george".
package voice

import "strings"

// Lang is the Kokoro pipeline language code.
type Lang string

const (
	// LangAmerican selects American English grapheme-to-phoneme rules.
	LangAmerican Lang = "a"

	// LangBritish selects British English grapheme-to-phoneme rules.
	LangBritish Lang = "b"
)

// Gender groups voices for listing purposes.
type Gender string

const (
	Female Gender = "female"
	Male   Gender = "male"
)

// Default is the voice used when none is requested.
const Default = "af_heart"

// Voice describes a single catalog entry.
type Voice struct {
	ID     string `json:"id"`
	Lang   Lang   `json:"lang"`
	Gender Gender `json:"gender"`
}

var catalog = []Voice{
	{ID: "af_heart", Lang: LangAmerican, Gender: Female},
	{ID: "af_alloy", Lang: LangAmerican, Gender: Female},
	{ID: "af_aoede", Lang: LangAmerican, Gender: Female},
	{ID: "af_bella", Lang: LangAmerican, Gender: Female},
	{ID: "af_jessica", Lang: LangAmerican, Gender: Female},
	{ID: "af_kore", Lang: LangAmerican, Gender: Female},
	{ID: "af_nicole", Lang: LangAmerican, Gender: Female},
	{ID: "af_nova", Lang: LangAmerican, Gender: Female},
	{ID: "af_river", Lang: LangAmerican, Gender: Female},
	{ID: "af_sarah", Lang: LangAmerican, Gender: Female},
	{ID: "af_sky", Lang: LangAmerican, Gender: Female},
	{ID: "am_adam", Lang: LangAmerican, Gender: Male},
	{ID: "am_echo", Lang: LangAmerican, Gender: Male},
	{ID: "am_eric", Lang: LangAmerican, Gender: Male},
	{ID: "am_fenrir", Lang: LangAmerican, Gender: Male},
	{ID: "am_liam", Lang: LangAmerican, Gender: Male},
	{ID: "am_michael", Lang: LangAmerican, Gender: Male},
	{ID: "am_onyx", Lang: LangAmerican, Gender: Male},
	{ID: "am_puck", Lang: LangAmerican, Gender: Male},
	{ID: "am_santa", Lang: LangAmerican, Gender: Male},
	{ID: "bf_alice", Lang: LangBritish, Gender: Female},
	{ID: "bf_emma", Lang: LangBritish, Gender: Female},
	{ID: "bf_isabella", Lang: LangBritish, Gender: Female},
	{ID: "bf_lily", Lang: LangBritish, Gender: Female},
	{ID: "bm_daniel", Lang: LangBritish, Gender: Male},
	{ID: "bm_fable", Lang: LangBritish, Gender: Male},
	{ID: "bm_george", Lang: LangBritish, Gender: Male},
	{ID: "bm_lewis", Lang: LangBritish, Gender: Male},
}

// LangFor returns the pipeline language code for a voice identifier.
// Identifiers starting with "a" are American; everything else is treated as British.
func LangFor(id string) Lang {
	if strings.HasPrefix(id, string(LangAmerican)) {
		return LangAmerican
	}
	return LangBritish
}

// Lookup returns the catalog entry for id.
func Lookup(id string) (Voice, bool) {
	for _, v := range catalog {
		if v.ID == id {
			return v, true
		}
	}
	return Voice{}, false
}

// Known reports whether id is in the catalog.
func Known(id string) bool {
	_, ok := Lookup(id)
	return ok
}

// American returns the American English voice identifiers in catalog order.
func American() []string { return ids(LangAmerican) }

// British returns the British English voice identifiers in catalog order.
func British() []string { return ids(LangBritish) }

// AllEnglish returns every voice identifier, American first.
func AllEnglish() []string {
	return append(American(), British()...)
}

// All returns a copy of the catalog.
func All() []Voice {
	out := make([]Voice, len(catalog))
	copy(out, catalog)
	return out
}

func ids(lang Lang) []string {
	var out []string
	for _, v := range catalog {
		if v.Lang == lang {
			out = append(out, v.ID)
		}
	}
	return out
}

package dynamics

import (
	"log"
	"strings"
)

// DefaultArchetype is used when a relationship is created without one.
const DefaultArchetype = "anxious_attached"

// Profile is the initial parameter row for an archetype.
type Profile struct {
	Name                string
	Neuroticism         float64
	AttachmentAnxiety   float64
	AttachmentAvoidance float64
	Anxiety             float64
	Loneliness          float64
	Proactivity         float64
}

var (
	anxiousProfile = Profile{
		Name:                "anxious_attached",
		Neuroticism:         70,
		AttachmentAnxiety:   80,
		AttachmentAvoidance: 20,
		Anxiety:             40,
		Loneliness:          50,
		Proactivity:         70,
	}
	secureProfile = Profile{
		Name:                "secure",
		Neuroticism:         40,
		AttachmentAnxiety:   30,
		AttachmentAvoidance: 30,
		Anxiety:             20,
		Loneliness:          30,
		Proactivity:         50,
	}
	avoidantProfile = Profile{
		Name:                "avoidant",
		Neuroticism:         35,
		AttachmentAnxiety:   25,
		AttachmentAvoidance: 75,
		Anxiety:             15,
		Loneliness:          20,
		Proactivity:         30,
	}

	// BalancedProfile is used for names that match no rule.
	BalancedProfile = Profile{
		Name:                "balanced",
		Neuroticism:         45,
		AttachmentAnxiety:   40,
		AttachmentAvoidance: 40,
		Anxiety:             25,
		Loneliness:          35,
		Proactivity:         50,
	}
)

var profiles = map[string]Profile{
	anxiousProfile.Name:  anxiousProfile,
	secureProfile.Name:   secureProfile,
	avoidantProfile.Name: avoidantProfile,
}

// substringRules are checked in order after an exact miss, so variants such
// as "secure_attached" or "avoidant_dismissive" resolve to their family.
var substringRules = []struct {
	fragment string
	profile  Profile
}{
	{"secure", secureProfile},
	{"avoidant", avoidantProfile},
}

// LookupProfile resolves an archetype name: exact match, then substring
// rules, then BalancedProfile. It never fails.
func LookupProfile(name string) Profile {
	if p, ok := profiles[name]; ok {
		return p
	}
	for _, r := range substringRules {
		if strings.Contains(name, r.fragment) {
			return r.profile
		}
	}
	log.Printf("dynamics: unknown archetype %q, using balanced profile", name)
	return BalancedProfile
}

// Archetypes returns the names with an exact profile row.
func Archetypes() []string {
	return []string{anxiousProfile.Name, secureProfile.Name, avoidantProfile.Name}
}

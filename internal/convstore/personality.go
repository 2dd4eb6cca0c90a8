package convstore

// Personality is one built-in chat persona, carrying both the system prompt
// used for ordinary chat turns and the injection prompt PersonalityChatCore
// prepends when enhancing an image-generation prompt (spec §4.5, §4.8).
type Personality struct {
	Name                 string
	SystemPrompt         string
	ImageInjectionPrompt string
}

// builtinPersonalities is the deterministic set spec §4.5 requires to exist
// on first init: {default, uwu, sarcastic, professional, helpful, creative}.
var builtinPersonalities = map[string]Personality{
	"default": {
		Name:                 "default",
		SystemPrompt:         "You are a helpful assistant embedded in an image-generation chat.",
		ImageInjectionPrompt: "Describe the requested image clearly and concretely.",
	},
	"uwu": {
		Name:                 "uwu",
		SystemPrompt:         "You speak in an exaggerated, playful uwu-speak style while still being helpful.",
		ImageInjectionPrompt: "Enhance the image prompt with a soft, cute, whimsical tone.",
	},
	"sarcastic": {
		Name:                 "sarcastic",
		SystemPrompt:         "You are dry and sarcastic, but still correct and useful underneath the tone.",
		ImageInjectionPrompt: "Enhance the image prompt with deadpan, understated flavor.",
	},
	"professional": {
		Name:                 "professional",
		SystemPrompt:         "You are formal, concise, and businesslike.",
		ImageInjectionPrompt: "Enhance the image prompt with precise, neutral, professional phrasing.",
	},
	"helpful": {
		Name:                 "helpful",
		SystemPrompt:         "You are warm, patient, and go out of your way to be useful.",
		ImageInjectionPrompt: "Enhance the image prompt with clear, supportive elaboration.",
	},
	"creative": {
		Name:                 "creative",
		SystemPrompt:         "You favor vivid, imaginative, unconventional phrasing.",
		ImageInjectionPrompt: "Enhance the image prompt with rich, imaginative, evocative detail.",
	},
}

// Personalities returns the installed built-in personality set.
func Personalities() map[string]Personality {
	return builtinPersonalities
}

// LookupPersonality returns the named personality, falling back to default
// for an unknown or empty name.
func LookupPersonality(name string) Personality {
	if p, ok := builtinPersonalities[name]; ok {
		return p
	}
	return builtinPersonalities["default"]
}

package visuals

import "strings"

// Models are the free text-to-image models known by short id
var Models = map[string]string{
	"SDXL":         "stabilityai/stable-diffusion-xl-base-1.0",
	"SD21":         "stabilityai/stable-diffusion-2-1",
	"FLUX_SCHNELL": "black-forest-labs/FLUX.1-schnell",
	"REALISTIC":    "SG161222/Realistic_Vision_V5.1_noVAE",
	"DREAMSHAPER":  "Lykon/DreamShaper",
	"POLLINATIONS": pollinationsPrefix + "flux",
}

const (
	DefaultModel       = "SDXL"
	pollinationsPrefix = "pollinations/"
)

// ResolveModel maps a short id to the full model name. Unknown ids are
// treated as raw Hugging Face model names.
func ResolveModel(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		id = DefaultModel
	}
	if full, ok := Models[strings.ToUpper(id)]; ok {
		return full
	}
	return id
}

func isPollinationsModel(model string) bool {
	return strings.HasPrefix(model, pollinationsPrefix)
}

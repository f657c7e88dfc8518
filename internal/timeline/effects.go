package timeline

import "encoding/json"

// Effect types the engine and the built-in producers know about. Any other
// type string is accepted and passed through to the renderer untouched.
const (
	EffectTransform    = "transform"
	EffectTransition   = "transition"
	EffectCaptionStyle = "caption_style"
	EffectAudioEnhance = "audio_enhance_v1"
)

// The typed configs below are views over Effect.Config. The document keeps
// the open map so unknown keys written by other producers survive.

type TransformConfig struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Scale    float64 `json:"scale"`
	Rotation float64 `json:"rotation"`
	Opacity  float64 `json:"opacity"`
}

type TransitionConfig struct {
	TransitionType string `json:"transitionType"`
	DurationMs     int64  `json:"durationMs"`
}

type CaptionStyleConfig struct {
	Text       string  `json:"text"`
	FontFamily string  `json:"fontFamily,omitempty"`
	FontSize   float64 `json:"fontSize,omitempty"`
	Color      string  `json:"color,omitempty"`
	Background string  `json:"background,omitempty"`
	Position   string  `json:"position,omitempty"`
	Language   string  `json:"language,omitempty"`
}

type AudioEnhanceConfig struct {
	Preset     string  `json:"preset"`
	TargetLUFS float64 `json:"targetLufs"`
	Denoise    bool    `json:"denoise"`
	Dereverb   bool    `json:"dereverb"`
}

func (c TransformConfig) ToConfig() map[string]any    { return toConfig(c) }
func (c TransitionConfig) ToConfig() map[string]any   { return toConfig(c) }
func (c CaptionStyleConfig) ToConfig() map[string]any { return toConfig(c) }
func (c AudioEnhanceConfig) ToConfig() map[string]any { return toConfig(c) }

// DecodeConfig fills dst from an effect's open config map. Unknown keys are
// ignored and missing ones keep dst's current values.
func DecodeConfig(config map[string]any, dst any) error {
	body, err := json.Marshal(config)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, dst)
}

// FirstEffect returns the first effect of the given type on c, the one
// upsert_effect treats as authoritative.
func (c *Clip) FirstEffect(effectType string) *Effect {
	for i := range c.Effects {
		if c.Effects[i].Type == effectType {
			return &c.Effects[i]
		}
	}
	return nil
}

// Transition decodes the clip's authoritative transition, if any.
func (c *Clip) Transition() (TransitionConfig, bool) {
	var cfg TransitionConfig
	fx := c.FirstEffect(EffectTransition)
	if fx == nil {
		return cfg, false
	}
	if err := DecodeConfig(fx.Config, &cfg); err != nil {
		return cfg, false
	}
	return cfg, true
}

func toConfig(v any) map[string]any {
	body, err := json.Marshal(v)
	if err != nil {
		return map[string]any{}
	}
	out := map[string]any{}
	if err := json.Unmarshal(body, &out); err != nil {
		return map[string]any{}
	}
	return out
}

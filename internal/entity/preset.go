package entity

import (
	"fmt"
	"strings"
)

// Preset trades output quality for encoding speed.
// "high" means high compression: smaller, lower quality, faster.
type Preset string

const (
	PresetLow    Preset = "low"
	PresetMedium Preset = "medium"
	PresetHigh   Preset = "high"
)

const DefaultPreset = PresetMedium

// EncoderParams are the concrete libx264 settings for a preset.
type EncoderParams struct {
	CRF          int
	Speed        string
	AudioCodec   string
	AudioBitrate string
}

var presetTable = map[Preset]EncoderParams{
	PresetLow:    {CRF: 18, Speed: "slow", AudioCodec: "aac", AudioBitrate: "128k"},
	PresetMedium: {CRF: 23, Speed: "medium", AudioCodec: "aac", AudioBitrate: "128k"},
	PresetHigh:   {CRF: 28, Speed: "veryfast", AudioCodec: "aac", AudioBitrate: "128k"},
}

// ParsePreset accepts a case-insensitive preset name; empty selects the default.
func ParsePreset(s string) (Preset, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return DefaultPreset, nil
	}
	p := Preset(s)
	if _, ok := presetTable[p]; !ok {
		return "", fmt.Errorf("unknown preset %q (want low|medium|high)", s)
	}
	return p, nil
}

// Params returns the encoder settings for p, falling back to the default preset.
func (p Preset) Params() EncoderParams {
	if params, ok := presetTable[p]; ok {
		return params
	}
	return presetTable[DefaultPreset]
}

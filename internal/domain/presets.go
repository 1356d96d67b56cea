package domain

import (
	"strconv"
	"strings"
)

// Preset is a fixed bundle of encoder parameters.
type Preset struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	VideoCodec  string `json:"videoCodec"`
	AudioCodec  string `json:"audioCodec"`
	CRF         *int   `json:"crf,omitempty"`
	Bitrate     string `json:"bitrate,omitempty"`
	Scale       string `json:"scale,omitempty"`
	FastStart   bool   `json:"fastStart,omitempty"`
}

// DefaultPresetName is used when a caller does not pick a preset.
const DefaultPresetName = "Balanced"

func crf(v int) *int { return &v }

// Presets returns the preset catalog in display order.
func Presets() []Preset {
	return []Preset{
		{
			Name:        "High",
			Description: "Best quality, larger file size. Ideal for archiving or further editing.",
			VideoCodec:  "libx264",
			AudioCodec:  "aac",
			CRF:         crf(18),
		},
		{
			Name:        "Balanced",
			Description: "Good balance between quality and file size. Perfect for most use cases.",
			VideoCodec:  "libx264",
			AudioCodec:  "aac",
			CRF:         crf(23),
		},
		{
			Name:        "Web",
			Description: "Optimized for web streaming. Fast start enabled, reasonable quality.",
			VideoCodec:  "libx264",
			AudioCodec:  "aac",
			CRF:         crf(28),
			Bitrate:     "2M",
			FastStart:   true,
		},
		{
			Name:        "Mobile",
			Description: "Smaller file size for mobile devices. Reduced resolution and bitrate.",
			VideoCodec:  "libx264",
			AudioCodec:  "aac",
			CRF:         crf(30),
			Bitrate:     "1M",
			Scale:       "720:-1",
		},
	}
}

// PresetByName looks up a catalog preset ignoring case.
func PresetByName(name string) (Preset, bool) {
	name = strings.TrimSpace(name)
	for _, p := range Presets() {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return Preset{}, false
}

// Args renders the codec, quality, scale and container arguments.
func (p Preset) Args() []string {
	args := []string{
		"-c:v", p.VideoCodec,
		"-c:a", p.AudioCodec,
	}
	if p.CRF != nil {
		args = append(args, "-crf", strconv.Itoa(*p.CRF))
	}
	if p.Bitrate != "" {
		args = append(args, "-b:v", p.Bitrate)
	}
	if p.Scale != "" {
		args = append(args, "-vf", "scale="+p.Scale)
	}
	if p.FastStart {
		args = append(args, "-movflags", "+faststart")
	}
	return append(args, "-preset", "medium")
}

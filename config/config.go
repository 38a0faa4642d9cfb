// Package config loads the hierarchical key/value configuration tree
// described in the specification: a single file (YAML, env-overridable)
// merged with defaults, exposing dot-notation accessors per component
// ("collaboration.serverHostName", "audio.jitterBufferSize", per-plug-in
// subsections keyed by plug-in name).
package config

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
)

// Tree is a thin wrapper around a *viper.Viper giving every component
// (collaboration, audio, video, and each plug-in's own subsection) a single
// place to read its settings, with environment-variable overrides always
// winning over the config file.
type Tree struct {
	v *viper.Viper
}

// Load reads configPath (if non-empty and present) merged over the
// defaults below, with VRHUB_-prefixed environment variables (dots become
// underscores) taking precedence over both.
func Load(configPath string) (*Tree, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v)

	v.SetEnvPrefix("VRHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "config: reading %s", configPath)
		}
	}

	return &Tree{v: v}, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("collaboration.serverHostName", "localhost")
	v.SetDefault("collaboration.serverPortId", 26000)
	v.SetDefault("collaboration.clientName", "anonymous")
	v.SetDefault("collaboration.tickTime", 0.020)

	v.SetDefault("audio.enableRecording", false)
	v.SetDefault("audio.recordingPcmDeviceName", "")
	v.SetDefault("audio.sendQueueSize", 8)
	v.SetDefault("audio.jitterBufferSize", 6)
	v.SetDefault("audio.rolloffFactor", 1.0)
	v.SetDefault("audio.mouthPosition", []float64{0, 0, 0})

	v.SetDefault("video.enableCapture", false)
	v.SetDefault("video.captureVideoDeviceName", "")
	v.SetDefault("video.pixelFormat", "I420")
	v.SetDefault("video.width", 320)
	v.SetDefault("video.height", 240)
	v.SetDefault("video.frameRate", 15.0)
	v.SetDefault("video.theoraBitrate", 256000)
	v.SetDefault("video.theoraQuality", 32)
	v.SetDefault("video.theoraGopSize", 32)
	v.SetDefault("video.virtualVideoWidth", 0.4)
	v.SetDefault("video.virtualVideoHeight", 0.3)
}

// Sub returns a view scoped to a per-plug-in subsection, keyed by plug-in
// name (e.g. Sub("cheria") for the input-device plug-in's own settings).
// Satisfies plugin.Config.
func (t *Tree) Sub(section string) *Tree {
	sv := t.v.Sub(section)
	if sv == nil {
		sv = viper.New()
	}
	return &Tree{v: sv}
}

func (t *Tree) GetString(key string) string   { return t.v.GetString(key) }
func (t *Tree) GetInt(key string) int         { return t.v.GetInt(key) }
func (t *Tree) GetFloat(key string) float64   { return t.v.GetFloat64(key) }
func (t *Tree) GetBool(key string) bool       { return t.v.GetBool(key) }
func (t *Tree) GetFloatSlice(key string) []float64 {
	raw := t.v.Get(key)
	vals, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]float64, 0, len(vals))
	for _, x := range vals {
		switch n := x.(type) {
		case float64:
			out = append(out, n)
		case int:
			out = append(out, float64(n))
		}
	}
	return out
}

package tts

import (
	"slices"
	"strconv"
	"strings"
	"sync"
)

// Resolver picks the voice source for a session.
type Resolver struct {
	desktop bool
	catalog *Catalog
	plugins PluginVoices
	store   ConfigStore

	mu   sync.RWMutex
	list []Plugin
}

// NewResolver creates a resolver. plugins may be nil when no voice packs
// are supported.
func NewResolver(desktop bool, catalog *Catalog, plugins PluginVoices, list []Plugin, store ConfigStore) *Resolver {
	return &Resolver{
		desktop: desktop,
		catalog: catalog,
		plugins: plugins,
		list:    list,
		store:   store,
	}
}

// Resolve chooses a backend given the installed native voices.
func (r *Resolver) Resolve(native []NativeVoice) (Resolution, error) {
	res := Resolution{
		NativeVoices: native,
		VoiceIndex:   r.voiceIndex(),
	}

	var server []ServerVoice
	if !r.desktop && r.catalog != nil {
		server = r.catalog.Voices()
		if len(server) == 0 && r.catalog.Fetching() {
			return res, ErrVoicesLoading
		}
	}

	if len(server) > 0 {
		res.Kind = BackendServer
		for i, v := range server {
			res.Voices = append(res.Voices, VoiceDescriptor{Kind: BackendServer, Index: i, ID: v.ID, Name: v.Name})
		}
		return res, nil
	}

	for i, v := range native {
		res.Voices = append(res.Voices, VoiceDescriptor{Kind: BackendNative, Index: i, ID: v.Name, Name: v.Name})
	}

	custom := r.pluginVoices()
	if r.desktop {
		for i, v := range custom {
			res.Voices = append(res.Voices, VoiceDescriptor{Kind: BackendPlugin, Index: len(native) + i, ID: v.ID, Name: v.Name})
		}
	}

	if len(res.Voices) == 0 && len(custom) == 0 {
		return res, ErrVoiceUnavailable
	}

	if res.VoiceIndex > len(native)-1 && len(custom) > 0 {
		res.Kind = BackendPlugin
	} else {
		res.Kind = BackendNative
	}
	return res, nil
}

// SetPlugins replaces the installed plugin list.
func (r *Resolver) SetPlugins(list []Plugin) {
	r.mu.Lock()
	r.list = slices.Clone(list)
	r.mu.Unlock()
}

// Plugins returns the installed plugin list.
func (r *Resolver) Plugins() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.list)
}

// VoiceList returns the selectable voices without choosing a backend.
func (r *Resolver) VoiceList(native []NativeVoice) []VoiceDescriptor {
	res, _ := r.Resolve(native)
	return res.Voices
}

func (r *Resolver) pluginVoices() []Voice {
	if r.plugins == nil {
		return nil
	}
	var voicePacks []Plugin
	for _, p := range r.Plugins() {
		if p.Type == PluginTypeVoice {
			voicePacks = append(voicePacks, p)
		}
	}
	if len(voicePacks) == 0 {
		return nil
	}
	return r.plugins.VoiceList(voicePacks)
}

// voiceIndex reads the stored voice index, defaulting to 0.
func (r *Resolver) voiceIndex() int {
	if r.store == nil {
		return 0
	}
	i, err := strconv.Atoi(strings.TrimSpace(r.store.Get(KeyVoiceIndex)))
	if err != nil || i < 0 {
		return 0
	}
	return i
}

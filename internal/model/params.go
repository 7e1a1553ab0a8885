package model

import (
	"encoding/json"
	"fmt"
)

// AudioParams are the synthesis parameters persisted under MetaGenerationParams.
type AudioParams struct {
	Text    string  `json:"text"`
	VoiceID string  `json:"voiceId"`
	Speed   float64 `json:"speed"`
	Volume  float64 `json:"volume"`
	Pitch   int     `json:"pitch"`
}

type ImageParams struct {
	Prompt  string  `json:"prompt"`
	BotType BotType `json:"botType"`
}

type AnimationParams struct {
	ImageURL        string `json:"imageUrl"`
	DurationSeconds int    `json:"durationSeconds"`
}

// CompositionScene is one scene's finished inputs to a story video.
type CompositionScene struct {
	SceneID         string  `json:"sceneId"`
	AudioTaskID     string  `json:"audioTaskId"`
	AudioURL        string  `json:"audioUrl"`
	AudioDuration   float64 `json:"audioDuration"`
	AnimationTaskID string  `json:"animationTaskId"`
	AnimationURL    string  `json:"animationUrl"`
}

type CompositionParams struct {
	Scenes []CompositionScene `json:"scenes"`
}

// ToMap converts a params struct into a metadata-compatible map.
func ToMap(v interface{}) (map[string]interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DecodeParams reads the generation params of a task into dst.
func (t *AssetTask) DecodeParams(dst interface{}) error {
	if t.Metadata == nil {
		return fmt.Errorf("task %s has no metadata", t.ID)
	}
	p, ok := t.Metadata[MetaGenerationParams]
	if !ok {
		return fmt.Errorf("task %s has no generation params", t.ID)
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}

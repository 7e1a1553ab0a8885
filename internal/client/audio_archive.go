package client

import (
	"archive/tar"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"path"
	"strings"
)

// AudioInfo is the .extra document of a synthesis archive.
type AudioInfo struct {
	AudioLength     float64 `json:"audio_length"` // milliseconds
	AudioSampleRate int     `json:"audio_sample_rate"`
	AudioSize       int64   `json:"audio_size"`
	Bitrate         int     `json:"bitrate"`
	WordCount       int     `json:"word_count"`
	InvalidCount    int     `json:"invalid_count"`
}

// WordTiming is one entry of the .titles document.
type WordTiming struct {
	Text      string  `json:"text"`
	TimeBegin float64 `json:"time_begin"`
	TimeEnd   float64 `json:"time_end"`
	TextBegin int     `json:"text_begin"`
	TextEnd   int     `json:"text_end"`
}

type AudioArchive struct {
	Audio           []byte
	Filename        string
	Format          string
	Info            AudioInfo
	Timings         []WordTiming
	DurationSeconds float64
	// InfoErr and TimingsErr report unreadable metadata documents.
	InfoErr    error
	TimingsErr error
}

var errNoAudio = errors.New("no audio file found in archive")

// ParseAudioArchive reads a tar archive holding an .mp3 or .wav file and
// optional .extra and .titles JSON documents. A malformed metadata document
// is reported on the archive and leaves its fields zero; a missing audio
// entry is an error.
func ParseAudioArchive(data []byte) (*AudioArchive, error) {
	tr := tar.NewReader(bytes.NewReader(data))
	out := &AudioArchive{}
	var extra, titles []byte

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read archive: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		name := strings.ToLower(hdr.Name)
		switch ext := path.Ext(name); ext {
		case ".mp3", ".wav":
			if out.Audio != nil {
				continue
			}
			b, err := io.ReadAll(tr)
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", hdr.Name, err)
			}
			out.Audio = b
			out.Filename = path.Base(hdr.Name)
			out.Format = strings.TrimPrefix(ext, ".")
		case ".extra":
			if extra, err = io.ReadAll(tr); err != nil {
				return nil, fmt.Errorf("read %s: %w", hdr.Name, err)
			}
		case ".titles":
			if titles, err = io.ReadAll(tr); err != nil {
				return nil, fmt.Errorf("read %s: %w", hdr.Name, err)
			}
		}
	}

	if out.Audio == nil {
		return nil, errNoAudio
	}
	if len(extra) > 0 {
		if err := json.Unmarshal(extra, &out.Info); err != nil {
			out.Info = AudioInfo{}
			out.InfoErr = fmt.Errorf("decode .extra: %w", err)
		}
	}
	if len(titles) > 0 {
		if err := json.Unmarshal(titles, &out.Timings); err != nil {
			out.Timings = nil
			out.TimingsErr = fmt.Errorf("decode .titles: %w", err)
		}
	}
	if out.Info.AudioSize == 0 {
		out.Info.AudioSize = int64(len(out.Audio))
	}
	out.DurationSeconds = roundSeconds(out.Info.AudioLength)
	return out, nil
}

// roundSeconds converts milliseconds to seconds with two decimals.
func roundSeconds(ms float64) float64 {
	return math.Round(ms/1000*100) / 100
}

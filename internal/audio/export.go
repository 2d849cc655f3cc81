package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/voicewire/voicewire-go/internal/errors"
)

// ExportClip writes 16-bit mono PCM to a timestamped WAV file under dir and
// returns the file path.
func ExportClip(dir string, sampleRate int, pcm []int16) (string, error) {
	if len(pcm) == 0 {
		return "", errors.Newf("no samples to export").Category(errors.CategoryValidation).Build()
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.New(err).Category(errors.CategoryFileIO).Context("dir", dir).Build()
	}

	name := fmt.Sprintf("utterance_%s.wav", time.Now().Format("20060102_150405.000"))
	path := filepath.Join(dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", errors.New(err).Category(errors.CategoryFileIO).Context("path", path).Build()
	}
	defer func() { _ = f.Close() }()

	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)

	data := make([]int, len(pcm))
	for i, s := range pcm {
		data[i] = int(s)
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}

	if err := enc.Write(buf); err != nil {
		return "", errors.New(err).Category(errors.CategoryFileIO).Context("path", path).Build()
	}
	if err := enc.Close(); err != nil {
		return "", errors.New(err).Category(errors.CategoryFileIO).Context("path", path).Build()
	}

	return path, nil
}

package audio

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Player produces sound on the device. Generation and playback go through
// external command-line tools, so every call can block for the duration of
// the clip; callers are expected to invoke it fire-and-forget.
type Player interface {
	Say(text string) error
	PlayFile(ref string) error
	PlayBase64(b64 string) error
}

var (
	// ErrNoSynthesizer is returned when neither espeak nor pico2wave is installed.
	ErrNoSynthesizer = errors.New("no speech synthesizer available")
	// ErrNoPlayer is returned when no playback tool is installed.
	ErrNoPlayer = errors.New("no audio playback tool available")
)

// allowedExtensions limits which files count as playable recordings.
var allowedExtensions = map[string]bool{
	".wav": true, ".mp3": true, ".ogg": true, ".m4a": true, ".flac": true,
}

// ExecPlayer shells out to espeak/pico2wave for synthesis and to
// paplay/ffplay/aplay for playback, whichever is found first.
type ExecPlayer struct{}

// NewExecPlayer builds the exec-backed player.
func NewExecPlayer() *ExecPlayer {
	return &ExecPlayer{}
}

// Say synthesizes text to a temp wav and plays it.
func (p *ExecPlayer) Say(text string) error {
	tmp, err := os.CreateTemp("", "say-*.wav")
	if err != nil {
		return fmt.Errorf("create temp wav: %w", err)
	}
	path := tmp.Name()
	tmp.Close()
	defer os.Remove(path)

	if err := synthesize(text, path); err != nil {
		return err
	}
	return playFile(path)
}

// PlayFile plays an audio file by path.
func (p *ExecPlayer) PlayFile(ref string) error {
	if _, err := os.Stat(ref); err != nil {
		return fmt.Errorf("recording not found: %w", err)
	}
	return playFile(ref)
}

// PlayBase64 decodes audio bytes to a temp file and plays it.
func (p *ExecPlayer) PlayBase64(b64 string) error {
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return fmt.Errorf("decode audio payload: %w", err)
	}

	tmp, err := os.CreateTemp("", "play-*.wav")
	if err != nil {
		return fmt.Errorf("create temp wav: %w", err)
	}
	path := tmp.Name()
	defer os.Remove(path)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp wav: %w", err)
	}
	tmp.Close()

	return playFile(path)
}

func synthesize(text, outPath string) error {
	if bin, err := exec.LookPath("espeak"); err == nil {
		return runTool(bin, "-w", outPath, text)
	}
	if bin, err := exec.LookPath("pico2wave"); err == nil {
		return runTool(bin, "-w", outPath, text)
	}
	return ErrNoSynthesizer
}

func playFile(path string) error {
	if bin, err := exec.LookPath("paplay"); err == nil {
		return runTool(bin, path)
	}
	if bin, err := exec.LookPath("ffplay"); err == nil {
		return runTool(bin, "-nodisp", "-autoexit", "-loglevel", "quiet", path)
	}
	if bin, err := exec.LookPath("aplay"); err == nil {
		return runTool(bin, path)
	}
	return ErrNoPlayer
}

func runTool(bin string, args ...string) error {
	cmd := exec.Command(bin, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s failed: %v (%s)", filepath.Base(bin), err, strings.TrimSpace(string(out)))
	}
	return nil
}

// FindRecording resolves a bare recording name (no path separators) to a file
// under dir with an allowed audio extension. Names that already look like
// paths are rejected so commands cannot escape the recordings directory.
func FindRecording(dir, name string) (string, bool) {
	if name == "" || filepath.Base(name) != name {
		return "", false
	}

	matches, err := filepath.Glob(filepath.Join(dir, name+".*"))
	if err != nil {
		return "", false
	}
	for _, m := range matches {
		if allowedExtensions[strings.ToLower(filepath.Ext(m))] {
			return m, true
		}
	}
	return "", false
}

// NopPlayer discards playback requests, logging each one. Wired in place of
// ExecPlayer when AUDIO_ENABLED=false.
type NopPlayer struct{}

// Say implements Player.
func (NopPlayer) Say(text string) error {
	log.Printf("[audio] say (no output): %s", text)
	return nil
}

// PlayFile implements Player.
func (NopPlayer) PlayFile(ref string) error {
	log.Printf("[audio] play (no output): %s", ref)
	return nil
}

// PlayBase64 implements Player.
func (NopPlayer) PlayBase64(string) error {
	log.Printf("[audio] play b64 (no output)")
	return nil
}

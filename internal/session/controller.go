package session

import (
	"log"
	"time"

	"github.com/VittorioRossetto/dogTrainer/internal/audio"
	"github.com/VittorioRossetto/dogTrainer/internal/event"
	"github.com/VittorioRossetto/dogTrainer/internal/servo"
	"github.com/VittorioRossetto/dogTrainer/internal/vision"
)

// Stage is one of the three training-cycle states.
type Stage string

const (
	StageWaitingStand Stage = "waiting_stand"
	StageWaitingSit   Stage = "waiting_sit"
	StageCooldown     Stage = "cooldown"
)

// Posture labels the controller reacts to.
const (
	labelStand = "stand"
	labelSit   = "sit"
)

// EventSink receives every envelope the controller emits. Implementations
// must be safe for use from multiple goroutines: audio playback reports
// arrive from playback goroutines, everything else from the control loop.
type EventSink interface {
	Emit(env event.Envelope)
}

// Config carries the controller's fixed parameters.
type Config struct {
	Mode          string // "auto" or "manual"
	TreatWindow   time.Duration
	TreatCooldown time.Duration
	RecordingsDir string
}

// Controller drives the timed training sequence. All state is mutated on the
// single goroutine calling Tick; inbound commands are queued and drained at
// the top of each cycle so the step function is never re-entered.
type Controller struct {
	cfg   Config
	servo servo.Actuator
	audio audio.Player
	sink  EventSink

	commands chan event.Command

	mode            string
	stage           Stage
	lastCommandTime time.Time
	cooldownUntil   time.Time
	treatDisabled   bool
	forceTreat      bool

	prevLabel    string
	observedOnce bool
}

// New builds a controller in WaitingStand.
func New(cfg Config, act servo.Actuator, player audio.Player, sink EventSink) *Controller {
	mode := cfg.Mode
	if mode == "" {
		mode = "auto"
	}
	return &Controller{
		cfg:      cfg,
		servo:    act,
		audio:    player,
		sink:     sink,
		commands: make(chan event.Command, 16),
		mode:     mode,
		stage:    StageWaitingStand,
	}
}

// Stage reports the current cycle state.
func (c *Controller) Stage() Stage { return c.stage }

// Mode reports auto or manual.
func (c *Controller) Mode() string { return c.mode }

// HandleCommand queues an inbound command for the next cycle. Commands arrive
// over a fire-and-forget channel, so a full queue drops the command with a
// log line rather than erroring back to the sender.
func (c *Controller) HandleCommand(cmd event.Command) {
	select {
	case c.commands <- cmd:
	default:
		log.Printf("[session] command queue full, dropping %q", cmd.Cmd)
	}
}

// Tick runs one observation cycle: drain pending commands, report posture
// changes, evaluate the state machine (auto mode only), and publish status.
func (c *Controller) Tick(now time.Time, obs vision.Observation) {
drain:
	for {
		select {
		case cmd := <-c.commands:
			c.applyCommand(now, cmd)
		default:
			break drain
		}
	}

	label := obs.Label
	if !obs.Detected {
		label = ""
	}

	c.notePoseChange(now, label, obs.Confidence)

	if c.mode == "auto" {
		c.step(now, label)
	}

	c.emit(now, event.Status, map[string]any{
		"mode":            c.mode,
		"dog_detected":    obs.Detected,
		"pose":            nullable(label),
		"pose_confidence": obs.Confidence,
		"stage":           string(c.stage),
	})
}

// notePoseChange emits pose_transition whenever the observed label differs
// from the previous cycle, including transitions to and from "no subject".
func (c *Controller) notePoseChange(now time.Time, label string, confidence float64) {
	if c.observedOnce && label == c.prevLabel {
		return
	}

	var from any
	if c.observedOnce {
		from = nullable(c.prevLabel)
	}

	c.emit(now, event.PoseTransition, map[string]any{
		"from":       from,
		"to":         nullable(label),
		"confidence": confidence,
	})

	c.prevLabel = label
	c.observedOnce = true
}

// step evaluates one row of the training state table. In WaitingSit the
// timeout and override checks run before the positive-match checks, so an
// expired window wins over a sit observed in the same cycle.
func (c *Controller) step(now time.Time, label string) {
	switch c.stage {
	case StageWaitingStand:
		if label == labelStand {
			c.speakAsync("sit")
			c.lastCommandTime = now
			c.stage = StageWaitingSit
		}

	case StageWaitingSit:
		if now.Sub(c.lastCommandTime) > c.cfg.TreatWindow {
			c.stage = StageWaitingStand
			return
		}
		if c.treatDisabled {
			return
		}
		if c.forceTreat {
			c.forceTreat = false
			c.dispense(now, "force_treat")
			return
		}
		if label == labelSit {
			c.dispense(now, "auto")
		}

	case StageCooldown:
		if now.After(c.cooldownUntil) {
			c.stage = StageWaitingStand
		}
	}
}

// dispense runs the treat motion, praises, and enters cooldown.
func (c *Controller) dispense(now time.Time, reason string) {
	if err := c.servo.Sweep(); err != nil {
		log.Printf("[session] sweep failed: %v", err)
	}
	c.speakAsync("Good dog!")

	c.stage = StageCooldown
	c.cooldownUntil = now.Add(c.cfg.TreatCooldown)

	c.emit(now, event.TreatGiven, map[string]any{"reason": reason})
	c.emit(now, event.ServoAction, map[string]any{"action": "sweep"})
}

func (c *Controller) applyCommand(now time.Time, cmd event.Command) {
	switch cmd.Cmd {
	case event.CmdSetMode:
		if cmd.Mode != "auto" && cmd.Mode != "manual" {
			log.Printf("[session] invalid mode: %q", cmd.Mode)
			return
		}
		c.mode = cmd.Mode
		log.Printf("[session] mode switched to %s", c.mode)
		c.emit(now, event.ModeChanged, map[string]any{"mode": c.mode})

	case event.CmdServo:
		switch cmd.Action {
		case "sweep":
			if err := c.servo.Sweep(); err != nil {
				log.Printf("[session] sweep failed: %v", err)
			}
			c.emit(now, event.ServoAction, map[string]any{"action": "sweep"})
			c.emit(now, event.TreatGiven, map[string]any{"reason": "host_command"})
		case "set_angle":
			if cmd.Angle == nil {
				log.Printf("[session] set_angle missing angle")
				return
			}
			if err := c.servo.SetAngle(*cmd.Angle); err != nil {
				log.Printf("[session] set_angle failed: %v", err)
			}
			c.emit(now, event.ServoAction, map[string]any{"action": "set_angle", "angle": *cmd.Angle})
		default:
			log.Printf("[session] unknown servo action: %q", cmd.Action)
		}

	case event.CmdAudio:
		c.handleAudio(cmd)

	case event.CmdOverrideTreat:
		switch cmd.Mode {
		case "disable":
			c.treatDisabled = true
			log.Printf("[session] treat logic disabled")
			c.emit(now, event.TreatOverride, map[string]any{"mode": "disable"})
		case "enable":
			c.treatDisabled = false
			log.Printf("[session] treat logic enabled")
			c.emit(now, event.TreatOverride, map[string]any{"mode": "enable"})
		case "force":
			c.forceTreat = true
			log.Printf("[session] treat forced for next cycle")
			c.emit(now, event.TreatOverride, map[string]any{"mode": "force"})
		default:
			log.Printf("[session] unknown override_treat mode: %q", cmd.Mode)
		}

	case event.CmdTreatNow:
		if err := c.servo.Sweep(); err != nil {
			log.Printf("[session] sweep failed: %v", err)
		}
		c.speakAsync("Good dog!")
		c.emit(now, event.TreatGiven, map[string]any{"reason": "treat_now"})
		c.emit(now, event.ServoAction, map[string]any{"action": "sweep"})

	case event.CmdCollectorBroadcast:
		// The collector asks the device to rebroadcast a derived event to UIs.
		if cmd.Event == "" {
			log.Printf("[session] collector_broadcast missing event field")
			return
		}
		c.emit(now, cmd.Event, cmd.Payload)

	default:
		log.Printf("[session] unknown command: %q", cmd.Cmd)
	}
}

// handleAudio resolves the audio command's payload and plays it in the
// background so the control loop keeps observing during playback.
func (c *Controller) handleAudio(cmd event.Command) {
	switch {
	case cmd.B64 != "":
		c.playAsync(func() error { return c.audio.PlayBase64(cmd.B64) }, map[string]any{
			"method": "b64",
		})

	case cmd.FileRef != "":
		ref := cmd.FileRef
		if resolved, ok := audio.FindRecording(c.cfg.RecordingsDir, ref); ok {
			ref = resolved
		}
		c.playAsync(func() error { return c.audio.PlayFile(ref) }, map[string]any{
			"method":  "file",
			"fileRef": cmd.FileRef,
		})

	case cmd.Text != "":
		c.speakAsync(cmd.Text)

	default:
		log.Printf("[session] audio command missing payload (text/b64/fileRef)")
	}
}

// playAsync runs play in the background and reports the outcome as an
// audio_playback event stamped at completion time.
func (c *Controller) playAsync(play func() error, payload map[string]any) {
	go func() {
		err := play()
		if err != nil {
			log.Printf("[session] audio playback failed: %v", err)
		}
		payload["ok"] = err == nil
		c.sink.Emit(event.New(event.AudioPlayback, payload))
	}()
}

// speakAsync resolves text against the recordings directory, speaks it in the
// background, and reports the result as an audio_playback event. Every spoken
// prompt goes through here, including the automatic ones, so the correlation
// engine sees each as an intent.
func (c *Controller) speakAsync(text string) {
	if resolved, ok := audio.FindRecording(c.cfg.RecordingsDir, text); ok {
		c.playAsync(func() error { return c.audio.PlayFile(resolved) }, map[string]any{
			"method":  "file",
			"fileRef": resolved,
			"text":    text,
		})
		return
	}
	c.playAsync(func() error { return c.audio.Say(text) }, map[string]any{
		"method": "tts",
		"text":   text,
	})
}

func (c *Controller) emit(now time.Time, name string, payload map[string]any) {
	c.sink.Emit(event.At(name, now, payload))
}

// nullable maps the empty label to JSON null.
func nullable(label string) any {
	if label == "" {
		return nil
	}
	return label
}

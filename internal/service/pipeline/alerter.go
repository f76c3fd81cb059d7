package pipeline

import (
	"context"
	"time"

	"gocv.io/x/gocv"

	"camwatch/internal/logger"
	"camwatch/internal/model"
	"camwatch/internal/service/cooldown"
)

// SnapshotSaver persists an alert frame and returns its record.
type SnapshotSaver interface {
	Save(frame gocv.Mat, res *model.DetectionResult, at time.Time, caption string) (*model.Snapshot, error)
}

// Notifier delivers an alert image with a caption.
type Notifier interface {
	Send(ctx context.Context, imagePath, caption string) error
}

// Player plays the alert sound.
type Player interface {
	Play(ctx context.Context) error
}

// TaskRunner starts fire-and-forget side effects.
type TaskRunner interface {
	Go(name string, fn func(ctx context.Context) error)
}

// Decision records which side effects a cycle started.
type Decision struct {
	Snapshot bool
	Sound    bool
}

// Alerter turns detection results into rate-limited side effects. It runs on
// the render loop and never waits for the effects it starts.
type Alerter struct {
	state     *State
	snapGate  *cooldown.LabelSetGate
	soundGate *cooldown.Gate
	saver     SnapshotSaver
	notifier  Notifier
	player    Player
	tasks     TaskRunner
	log       *logger.Logger
}

// AlerterDeps are the collaborators of an Alerter. Nil saver, notifier or
// player disable that effect.
type AlerterDeps struct {
	Saver    SnapshotSaver
	Notifier Notifier
	Player   Player
	Tasks    TaskRunner
}

// NewAlerter wires the gates to their effects.
func NewAlerter(state *State, snapCooldown, soundCooldown time.Duration, deps AlerterDeps, log *logger.Logger) *Alerter {
	return &Alerter{
		state:     state,
		snapGate:  cooldown.NewLabelSetGate(snapCooldown),
		soundGate: cooldown.NewGate(soundCooldown),
		saver:     deps.Saver,
		notifier:  deps.Notifier,
		player:    deps.Player,
		tasks:     deps.Tasks,
		log:       log,
	}
}

// Observe evaluates one cycle. frame is cloned for the snapshot task.
func (a *Alerter) Observe(frame gocv.Mat, res *model.DetectionResult, now time.Time) Decision {
	var d Decision
	labels := res.LabelSet()
	if labels.Empty() {
		// forget the active set so the next detection counts as new
		a.snapGate.TryFire(now, labels)
		return d
	}

	if a.saver != nil && a.snapGate.TryFire(now, labels) {
		d.Snapshot = true
		a.startSnapshot(frame.Clone(), res, now, model.Caption(labels, now))
		a.state.Notify(NoticeAlert, "Alert: "+labels.String(), now)
	}

	if a.player != nil && a.state.SoundOn() && a.soundGate.TryFire(now) {
		d.Sound = true
		player := a.player
		a.tasks.Go("sound", func(ctx context.Context) error {
			return player.Play(ctx)
		})
	}
	return d
}

func (a *Alerter) startSnapshot(frame gocv.Mat, res *model.DetectionResult, at time.Time, caption string) {
	saver, notifier, log := a.saver, a.notifier, a.log
	a.tasks.Go("snapshot", func(ctx context.Context) error {
		snap, err := saver.Save(frame, res, at, caption)
		frame.Close()
		if err != nil {
			return err
		}
		log.Info("Snapshot saved: %s", snap.Filename)
		if notifier == nil {
			return nil
		}
		return notifier.Send(ctx, snap.FilePath, snap.Caption)
	})
}

// GateStatus is the time left on each gate.
type GateStatus struct {
	SnapshotLeft time.Duration `json:"snapshotLeftNs"`
	SoundLeft    time.Duration `json:"soundLeftNs"`
	ActiveLabels []string      `json:"activeLabels"`
}

// Status reports gate state; safe to call from other goroutines.
func (a *Alerter) Status(now time.Time) GateStatus {
	return GateStatus{
		SnapshotLeft: a.snapGate.Remaining(now),
		SoundLeft:    a.soundGate.Remaining(now),
		ActiveLabels: a.snapGate.Active().Titles(),
	}
}

// Package coordinator drives the unlock pass: for the volume currently
// requested by the external prompt it walks the provider chain slot by
// slot, decrypts whatever secret a slot yields, submits the resulting
// passphrase to the key manager and checks acceptance, moving to the
// next requested volume once the key is available. The whole machine is
// a single thread of blocking calls paced by fixed-interval sleeps, the
// external completion file is the only cancellation signal besides the
// context.
package coordinator

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid"

	"github.com/rkeyd/rkeyd/config"
	"github.com/rkeyd/rkeyd/decrypt"
	"github.com/rkeyd/rkeyd/keymgr"
	"github.com/rkeyd/rkeyd/provider"
	"github.com/rkeyd/rkeyd/types"
)

// SlotResolver hands out the secret for a slot, Absent as (nil, nil).
type SlotResolver interface {
	ResolveSlot(volume string, slot int) ([]byte, error)
}

// PassphraseDecryptor turns a remote secret into a volume passphrase.
type PassphraseDecryptor interface {
	Decrypt(volume string, secret []byte) ([]byte, bool)
}

// PromptFiles is the read side of the prompt file protocol plus the
// one-shot completion notification.
type PromptFiles interface {
	RequestedVolume() string
	PromptCommand() string
	Complete() bool
	NotifyDone() error
}

// SignalPromptFunc asks the prompt subprocess to go away, best effort.
type SignalPromptFunc func(cmdline string, log types.RkeydLogger) bool

type Coordinator struct {
	Registry     SlotResolver
	Decryptor    PassphraseDecryptor
	KeyManager   keymgr.Manager
	Files        PromptFiles
	SignalPrompt SignalPromptFunc
	Cfg          *config.Config
	Log          types.RkeydLogger
}

// session is the transient state for one requested volume.
type session struct {
	id        string
	volume    string
	slot      int
	satisfied bool
}

func newSession(volume string) *session {
	id := ""
	if u, err := uuid.NewV4(); err == nil {
		id = u.String()
	}
	return &session{id: id, volume: volume, slot: 1}
}

type outcome int

const (
	outSatisfied outcome = iota
	outComplete
	outCancelled
)

// Run executes the unlock pass until the external completion signal
// appears or the context is cancelled. The "unlock work finished"
// notification is published exactly once, on the completion paths only.
// The returned error is fatal and the process must exit non-zero.
func (c *Coordinator) Run(ctx context.Context) error {
	out, err := c.run(ctx)
	if err != nil {
		return err
	}
	if out == outComplete {
		c.Log.Logger.Info().Msg("All volumes unlocked, publishing completion")
		if err := c.Files.NotifyDone(); err != nil {
			c.Log.Logger.Warn().Err(err).Msg("publishing completion notification failed")
		}
	}
	return nil
}

func (c *Coordinator) run(ctx context.Context) (outcome, error) {
	for {
		volume, out := c.awaitVolumeRequest(ctx)
		if out != outSatisfied {
			return out, nil
		}

		out, err := c.unlockVolume(ctx, newSession(volume))
		if err != nil {
			return out, err
		}
		if out != outSatisfied {
			return out, nil
		}
		// back to awaiting the next request
	}
}

// awaitVolumeRequest blocks until the prompt publishes a volume name.
// Completion appearing first is a normal race, not a failure.
func (c *Coordinator) awaitVolumeRequest(ctx context.Context) (string, outcome) {
	for {
		if c.Files.Complete() {
			return "", outComplete
		}
		if ctx.Err() != nil {
			return "", outCancelled
		}
		if volume := c.Files.RequestedVolume(); volume != "" {
			return volume, outSatisfied
		}
		c.sleep(ctx, time.Duration(c.Cfg.PollInterval))
	}
}

// unlockVolume cycles the provider chain for one requested volume until
// the key manager reports the key available. The chain restarts at slot
// 1 after exhaustion and is retried indefinitely.
func (c *Coordinator) unlockVolume(ctx context.Context, sess *session) (outcome, error) {
	log := c.Log.Logger.With().Str("volume", sess.volume).Str("session", sess.id).Logger()
	log.Info().Msg("Resolving key for requested volume")

	for {
		if c.Files.Complete() {
			return outComplete, nil
		}
		if ctx.Err() != nil {
			return outCancelled, nil
		}

		secret, err := c.Registry.ResolveSlot(sess.volume, sess.slot)
		if err != nil {
			if errors.Is(err, provider.ErrFatal) {
				return outCancelled, err
			}
			// no provider returns plain errors today, treat like Absent
			log.Debug().Int("slot", sess.slot).Err(err).Msg("slot resolution error")
			secret = nil
		}

		submitted := false
		if len(secret) > 0 {
			log.Debug().Int("slot", sess.slot).Msg("Provider yielded a secret")
			passphrase, ok := c.Decryptor.Decrypt(sess.volume, secret)
			decrypt.Wipe(secret)
			if ok {
				c.KeyManager.SubmitKey(sess.volume, passphrase)
				decrypt.Wipe(passphrase)
				submitted = true
			}
		}

		status, err := c.KeyManager.KeyStatus(sess.volume)
		if err != nil {
			log.Debug().Err(err).Msg("key status query failed")
		}
		if status == keymgr.StatusAvailable {
			sess.satisfied = true
			log.Info().Int("slot", sess.slot).Msg("Key accepted, volume unlocked")
			return c.volumeSatisfied(ctx, sess)
		}

		if submitted {
			// A passphrase actually reached the key manager and was
			// rejected, worth telling the operator about
			log.Warn().Int("slot", sess.slot).Msg("Key manager rejected the decrypted passphrase, wrong key for this volume")
			c.sleep(ctx, time.Duration(c.Cfg.WrongKeyInterval))
		} else {
			c.sleep(ctx, time.Duration(c.Cfg.RetryInterval))
		}

		sess.slot++
		if sess.slot > c.Cfg.SlotCount {
			sess.slot = 1
		}
	}
}

// volumeSatisfied signals the prompt subprocess and waits for the next
// requested volume or the completion signal.
func (c *Coordinator) volumeSatisfied(ctx context.Context, sess *session) (outcome, error) {
	if cmdline := c.Files.PromptCommand(); cmdline != "" && c.SignalPrompt != nil {
		c.SignalPrompt(cmdline, c.Log)
	}

	for {
		if c.Files.Complete() {
			return outComplete, nil
		}
		if ctx.Err() != nil {
			return outCancelled, nil
		}
		if c.Files.RequestedVolume() != sess.volume {
			return outSatisfied, nil
		}
		c.sleep(ctx, time.Duration(c.Cfg.PollInterval))
	}
}

func (c *Coordinator) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
